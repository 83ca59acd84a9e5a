// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/models"
)

// Tallier is the read side of the tally store
type Tallier interface {
	Tally(ctx context.Context) (models.Tally, error)
}

// Broadcaster recomputes the tally on every tick and pushes the full
// snapshot to all observers on the global channel.
type Broadcaster struct {
	hub      *Hub
	store    Tallier
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Broadcaster
	logger   *slog.Logger

	failing bool
}

func NewBroadcaster(hub *Hub, store Tallier, interval, timeout time.Duration, m *metrics.Broadcaster, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewBroadcaster(prometheus.NewRegistry())
	}
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 || timeout > interval*5 {
		timeout = interval * 5
	}
	return &Broadcaster{
		hub:      hub,
		store:    store,
		interval: interval,
		timeout:  timeout,
		metrics:  m,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Run ticks until ctx is cancelled. A failed tick is logged and the next tick
// tries again; observers stay connected throughout.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("broadcasting scores", "interval", b.interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick queries the store once and broadcasts the result
func (b *Broadcaster) Tick(ctx context.Context) error {
	qctx, cancel := context.WithTimeout(ctx, b.timeout)
	tally, err := b.store.Tally(qctx)
	cancel()
	if err != nil {
		b.metrics.TickFailures.Inc()
		if !b.failing {
			b.logger.Error("tally query failed, retrying next tick", "error", err)
		}
		b.failing = true
		return fmt.Errorf("tally: %w", err)
	}
	if b.failing {
		b.logger.Info("tally query recovered")
		b.failing = false
	}

	frame, err := json.Marshal(models.Event{Event: models.EventScores, Data: tally})
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	delivered := b.hub.Broadcast(models.ChannelTally, frame)

	b.metrics.Ticks.Inc()
	for choice, n := range tally {
		b.metrics.Votes.WithLabelValues(choice).Set(float64(n))
	}
	b.logger.Debug("scores pushed", "observers", delivered, "votes", humanize.Comma(int64(total(tally))))
	return nil
}

func total(t models.Tally) int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}
