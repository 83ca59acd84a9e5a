// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

ParseFlags loads a .env file when present, parses flags, and falls back to
environment variables for anything left unset:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Flags and Environment

	-r               ROLE            vote, worker or result (required)
	-p               PORT            listen port (80 / 9100 / 4000 by role)
	-d               DATABASE_URL    store connection string
	-t               DATABASE_TYPE   postgres or sqlite (default postgres)
	--redis-host     REDIS_HOST      default "redis"
	--redis-port     REDIS_PORT      default 6379
	--redis-password REDIS_PASSWORD
	--redis-ssl      REDIS_SSL       true/1/yes enables TLS
	--queue          QUEUE_NAME      default "votes"
	--option-a       OPTION_A        default "Cats"
	--option-b       OPTION_B        default "Dogs"
	--retry          RETRY_INTERVAL  reconnect interval (default 1s)
	--poll           POLL_INTERVAL   empty-queue wait (default 100ms)
	--tick           TICK_INTERVAL   broadcast interval (default 1s)
	--timeout        OP_TIMEOUT      per-call timeout (default 5s)

CLI flags take precedence over environment variables.

# Validation

ParseFlags returns an error when:

  - no role is given, or the role is unknown
  - DATABASE_URL is missing for the worker or result role
  - DATABASE_TYPE is not postgres or sqlite
  - a numeric or duration env variable does not parse
*/
package cliparse
