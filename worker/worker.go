// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielhkuo/quickly-tally/db"
	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/queue"
)

// State is the worker's position in its connect/poll/apply cycle
type State int32

const (
	StateDisconnected State = iota
	StateIdle
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle-polling"
	case StateApplying:
		return "applying"
	default:
		return "unknown"
	}
}

// Queue is the consuming side of the hand-off queue
type Queue interface {
	Take(ctx context.Context, wait time.Duration) ([]byte, error)
	Close() error
}

// Store is the write side of the tally store
type Store interface {
	UpsertVote(ctx context.Context, v models.Vote) error
	KeepAlive(ctx context.Context) error
	Close() error
}

type Config struct {
	// RetryInterval is the fixed delay between connection attempts
	RetryInterval time.Duration
	// PollInterval bounds each wait on the queue
	PollInterval time.Duration
	// OpTimeout bounds every store round trip
	OpTimeout time.Duration
}

// Worker moves votes from the queue into the store, one at a time.
type Worker struct {
	cfg       Config
	dialQueue func(context.Context) (Queue, error)
	dialStore func(context.Context) (Store, error)
	metrics   *metrics.Worker
	logger    *slog.Logger

	state   atomic.Int32
	applied atomic.Int64
}

func New(cfg Config, dialQueue func(context.Context) (Queue, error), dialStore func(context.Context) (Store, error), m *metrics.Worker, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewWorker(prometheus.NewRegistry())
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &Worker{
		cfg:       cfg,
		dialQueue: dialQueue,
		dialStore: dialStore,
		metrics:   m,
		logger:    logger.With("component", "worker"),
	}
}

// State reports the current state
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Applied reports how many votes have been upserted since start
func (w *Worker) Applied() int64 {
	return w.applied.Load()
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run connects, then polls and applies until ctx is cancelled. Losing either
// connection sends the worker back to reconnecting. It returns nil on
// cancellation.
func (w *Worker) Run(ctx context.Context) error {
	for {
		w.setState(StateDisconnected)
		w.metrics.Connected.Set(0)

		store, err := dialWithRetry(ctx, w, "db", w.dialStore)
		if err != nil {
			return nil
		}
		q, err := dialWithRetry(ctx, w, "redis", w.dialQueue)
		if err != nil {
			store.Close()
			return nil
		}

		w.metrics.Connected.Set(1)
		w.logger.Info("connected, watching queue", "applied", humanize.Comma(w.Applied()))

		err = w.serve(ctx, q, store)
		q.Close()
		store.Close()

		if ctx.Err() != nil {
			w.setState(StateDisconnected)
			w.metrics.Connected.Set(0)
			return nil
		}
		w.logger.Warn("connection lost, reconnecting", "error", err)
	}
}

// dialWithRetry keeps dialling on a fixed interval until it succeeds or ctx
// is cancelled. There is no attempt limit.
func dialWithRetry[T any](ctx context.Context, w *Worker, name string, dial func(context.Context) (T, error)) (T, error) {
	var zero T
	downSince := time.Now()

	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, w.cfg.OpTimeout)
		conn, err := dial(dialCtx)
		cancel()
		if err == nil {
			if attempt > 1 {
				w.logger.Info("reconnected", "target", name, "attempts", attempt, "down_since", humanize.Time(downSince))
			}
			return conn, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		w.metrics.Reconnects.Inc()
		w.logger.Warn("waiting for "+name, "attempt", attempt, "error", err)

		timer := time.NewTimer(w.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// serve is the idle-polling loop. It returns the error that broke a connection.
func (w *Worker) serve(ctx context.Context, q Queue, store Store) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.setState(StateIdle)

		takeCtx, cancel := context.WithTimeout(ctx, w.cfg.PollInterval+w.cfg.OpTimeout)
		data, err := q.Take(takeCtx, w.cfg.PollInterval)
		cancel()

		switch {
		case errors.Is(err, queue.ErrEmpty):
			if err := w.keepAlive(ctx, store); err != nil {
				return err
			}
			continue
		case err != nil:
			return fmt.Errorf("take: %w", err)
		}

		if err := w.apply(ctx, store, data); err != nil {
			return err
		}
	}
}

func (w *Worker) keepAlive(ctx context.Context, store Store) error {
	w.metrics.KeepAlives.Inc()

	kaCtx, cancel := context.WithTimeout(ctx, w.cfg.OpTimeout)
	defer cancel()
	return store.KeepAlive(kaCtx)
}

// apply decodes and upserts one message. Undecodable or invalid messages are
// dropped. A store failure is returned after the message has been counted as
// lost: it is already off the queue and is not re-enqueued.
func (w *Worker) apply(ctx context.Context, store Store, data []byte) error {
	w.setState(StateApplying)

	var v models.Vote
	if err := json.Unmarshal(data, &v); err != nil {
		w.metrics.Poison.Inc()
		w.logger.Warn("dropping undecodable message", "error", err, "payload", truncate(data, 128))
		return nil
	}
	if err := v.Validate(); err != nil {
		w.metrics.Poison.Inc()
		w.logger.Warn("dropping invalid message", "error", err, "voter_id", v.VoterID, "vote", v.Choice)
		return nil
	}

	start := time.Now()
	applyCtx, cancel := context.WithTimeout(ctx, w.cfg.OpTimeout)
	err := store.UpsertVote(applyCtx, v)
	cancel()

	if err != nil {
		if !db.IsConnectionError(err) {
			w.metrics.Poison.Inc()
			w.logger.Error("store rejected vote, dropping", "error", err, "voter_id", v.VoterID)
			return nil
		}
		w.metrics.Lost.Inc()
		w.logger.Error("vote lost, store unavailable", "error", err, "voter_id", v.VoterID, "vote", v.Choice)
		return fmt.Errorf("apply: %w", err)
	}

	w.metrics.ApplyDuration.Observe(time.Since(start).Seconds())
	w.metrics.Applied.Inc()
	w.applied.Add(1)
	w.logger.Info("processing vote", "vote", v.Choice, "voter_id", v.VoterID)
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
