// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for Quickly Tally.

Quickly Tally is a two-option vote pipeline. Voters submit a choice to the
vote role, which appends it to a Redis list. The worker role drains the list
into a SQL table keyed by voter (last write wins), and the result role reads
the per-choice aggregate every tick and pushes it to websocket observers.

# Roles

One binary runs every component; -r (or ROLE) picks which:

	ROLE=vote   go run .                                  # ingestion, port 80
	ROLE=worker DATABASE_URL=postgres://... go run .      # persistence, /health on 9100
	ROLE=result DATABASE_URL=postgres://... go run .      # live results, port 4000

# Configuration

Required settings:

  - ROLE (-r): vote, worker or result
  - DATABASE_URL (-d): store connection string (worker and result)

Optional settings:

  - DATABASE_TYPE (-t): postgres or sqlite (default: postgres)
  - REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_SSL: queue connection
  - OPTION_A, OPTION_B: labels shown to voters and observers

See package cliparse for the full list.

# Architecture

  - handlers: vote page, submission and score snapshot endpoints
  - queue: Redis list client used by producer and worker
  - worker: connection state machine that applies queued votes
  - db: schema and tally store over database/sql
  - broadcast: websocket hub and periodic broadcaster
  - router: per-role route definitions
  - metrics: Prometheus collectors per role
  - middleware: CORS, logging, JSON helpers
  - models: wire and response types
  - auth: voter id cookie
  - cliparse: configuration parsing
*/
package main
