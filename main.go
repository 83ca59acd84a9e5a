package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielhkuo/quickly-tally/broadcast"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/db"
	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/queue"
	"github.com/danielhkuo/quickly-tally/router"
	"github.com/danielhkuo/quickly-tally/worker"
)

func main() {
	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	slog.Info("starting", "role", cfg.Role, "hostname", hostname)

	// Cancelled on Ctrl-C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Role {
	case cliparse.RoleVote:
		err = runVote(ctx, cfg)
	case cliparse.RoleWorker:
		err = runWorker(ctx, cfg)
	case cliparse.RoleResult:
		err = runResult(ctx, cfg)
	}
	if err != nil {
		slog.Error("exiting", "role", cfg.Role, "error", err)
		os.Exit(1)
	}
}

// runVote serves the ingestion producer. The queue client connects lazily,
// so the service starts even while redis is down and answers 503 until it is back.
func runVote(ctx context.Context, cfg cliparse.Config) error {
	rdb := queue.NewClient(cfg)
	defer rdb.Close()
	slog.Info("Initialized Redis client", "addr", cfg.RedisAddr(), "ssl", cfg.RedisSSL)

	m := metrics.NewProducer(prometheus.DefaultRegisterer)
	mux := router.NewVoteRouter(queue.New(rdb, cfg.QueueName), cfg, prometheus.DefaultGatherer, m)

	return serve(ctx, cfg.Port, middleware.CORS(mux))
}

// runWorker runs the persistence worker with a small health/metrics listener
func runWorker(ctx context.Context, cfg cliparse.Config) error {
	dialQueue := func(ctx context.Context) (worker.Queue, error) {
		return queue.Dial(ctx, cfg)
	}
	dialStore := func(ctx context.Context) (worker.Store, error) {
		return db.Connect(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	}

	wk := worker.New(worker.Config{
		RetryInterval: cfg.RetryInterval,
		PollInterval:  cfg.PollInterval,
		OpTimeout:     cfg.OpTimeout,
	}, dialQueue, dialStore, metrics.NewWorker(prometheus.DefaultRegisterer), slog.Default())

	go func() {
		if err := serve(ctx, cfg.Port, router.NewWorkerRouter(wk, prometheus.DefaultGatherer)); err != nil {
			slog.Error("worker health listener stopped", "error", err)
		}
	}()

	return wk.Run(ctx)
}

// runResult serves the push channel and runs the broadcaster.
// The store pool reconnects on its own, so a down database only fails ticks.
func runResult(ctx context.Context, cfg cliparse.Config) error {
	var store *db.Store
	for store == nil {
		conn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
		if err == nil {
			store = db.NewStore(conn)
			break
		}
		slog.Warn("waiting for db", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.RetryInterval):
		}
	}
	defer store.Close()
	slog.Info("Connected to db")

	m := metrics.NewBroadcaster(prometheus.DefaultRegisterer)
	hub := broadcast.NewHub(models.WelcomeData{
		Message: "Welcome!",
		OptionA: cfg.OptionA,
		OptionB: cfg.OptionB,
	}, m, slog.Default())
	defer hub.Close()

	b := broadcast.NewBroadcaster(hub, store, cfg.TickInterval, cfg.OpTimeout, m, slog.Default())
	go b.Run(ctx)

	mux := router.NewResultRouter(store, hub, cfg, prometheus.DefaultGatherer)
	return serve(ctx, cfg.Port, middleware.CORS(mux))
}

// serve runs an HTTP server until ctx is cancelled
func serve(ctx context.Context, port int, handler http.Handler) error {
	server := http.Server{
		Handler:           handler,
		Addr:              ":" + strconv.Itoa(port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "port", port)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	slog.Info("Server closed")
	return nil
}
