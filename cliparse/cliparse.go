package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Roles select which pipeline component the binary runs.
const (
	RoleVote   = "vote"
	RoleWorker = "worker"
	RoleResult = "result"
)

type Config struct {
	Role         string
	Port         int
	DatabaseURL  string
	DatabaseType string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisSSL      bool
	QueueName     string

	OptionA string
	OptionB string

	RetryInterval time.Duration
	PollInterval  time.Duration
	TickInterval  time.Duration
	OpTimeout     time.Duration
}

// RedisAddr returns host:port for the queue connection
func (c Config) RedisAddr() string {
	return c.RedisHost + ":" + strconv.Itoa(c.RedisPort)
}

// ParseFlags loads .env (if any), then validates flags with env fallbacks
func ParseFlags(args []string) (Config, error) {
	// A missing .env is the normal case outside local dev
	_ = godotenv.Load()

	var cfg Config
	var redisSSL string

	fs := flag.NewFlagSet("quickly-tally", flag.ContinueOnError)

	fs.StringVar(&cfg.Role, "r", "", "Role to run (vote, worker or result)")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	fs.StringVar(&cfg.RedisHost, "redis-host", "", "Redis host")
	fs.IntVar(&cfg.RedisPort, "redis-port", 0, "Redis port")
	fs.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password (prefer env)")
	fs.StringVar(&redisSSL, "redis-ssl", "", "Use TLS for Redis (true/false)")
	fs.StringVar(&cfg.QueueName, "queue", "", "Redis list holding pending votes")

	fs.StringVar(&cfg.OptionA, "option-a", "", "Label for choice a")
	fs.StringVar(&cfg.OptionB, "option-b", "", "Label for choice b")

	fs.DurationVar(&cfg.RetryInterval, "retry", 0, "Reconnect interval")
	fs.DurationVar(&cfg.PollInterval, "poll", 0, "Queue poll interval")
	fs.DurationVar(&cfg.TickInterval, "tick", 0, "Broadcast interval")
	fs.DurationVar(&cfg.OpTimeout, "timeout", 0, "Timeout for queue and store calls")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Role == "" {
		cfg.Role = os.Getenv("ROLE")
	}
	switch cfg.Role {
	case RoleVote, RoleWorker, RoleResult:
	case "":
		return Config{}, errors.New("role required (use -r or ROLE env)")
	default:
		return Config{}, fmt.Errorf("unknown role %q", cfg.Role)
	}

	var err error
	if cfg.Port == 0 {
		if cfg.Port, err = envInt("PORT", defaultPort(cfg.Role)); err != nil {
			return Config{}, err
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" && cfg.Role != RoleVote {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	if cfg.DatabaseType == "" {
		cfg.DatabaseType = envString("DATABASE_TYPE", "postgres")
	}
	if cfg.DatabaseType != "postgres" && cfg.DatabaseType != "sqlite" {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	if cfg.RedisHost == "" {
		cfg.RedisHost = envString("REDIS_HOST", "redis")
	}
	if cfg.RedisPort == 0 {
		if cfg.RedisPort, err = envInt("REDIS_PORT", 6379); err != nil {
			return Config{}, err
		}
	}
	if cfg.RedisPassword == "" {
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}
	if redisSSL == "" {
		redisSSL = os.Getenv("REDIS_SSL")
	}
	cfg.RedisSSL = parseBool(redisSSL)
	if cfg.QueueName == "" {
		cfg.QueueName = envString("QUEUE_NAME", "votes")
	}

	if cfg.OptionA == "" {
		cfg.OptionA = envString("OPTION_A", "Cats")
	}
	if cfg.OptionB == "" {
		cfg.OptionB = envString("OPTION_B", "Dogs")
	}

	if cfg.RetryInterval == 0 {
		if cfg.RetryInterval, err = envDuration("RETRY_INTERVAL", time.Second); err != nil {
			return Config{}, err
		}
	}
	if cfg.PollInterval == 0 {
		if cfg.PollInterval, err = envDuration("POLL_INTERVAL", 100*time.Millisecond); err != nil {
			return Config{}, err
		}
	}
	if cfg.TickInterval == 0 {
		if cfg.TickInterval, err = envDuration("TICK_INTERVAL", time.Second); err != nil {
			return Config{}, err
		}
	}
	if cfg.OpTimeout == 0 {
		if cfg.OpTimeout, err = envDuration("OP_TIMEOUT", 5*time.Second); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func defaultPort(role string) int {
	switch role {
	case RoleResult:
		return 4000
	case RoleWorker:
		return 9100
	default:
		return 80
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return d, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
