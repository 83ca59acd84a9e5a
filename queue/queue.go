// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/models"
)

// ErrEmpty is returned by Take when no message arrived within the wait
var ErrEmpty = errors.New("queue empty")

// pollStep is the LPOP interval for waits shorter than a second
const pollStep = 10 * time.Millisecond

// Queue is a FIFO work queue over a single Redis list.
// Producers RPUSH onto the tail, consumers LPOP from the head.
type Queue struct {
	rdb  *redis.Client
	name string
}

// NewClient builds a Redis client from the connection settings.
// Every socket operation is bounded by cfg.OpTimeout.
func NewClient(cfg cliparse.Config) *redis.Client {
	opts := &redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.RedisPassword,
		DB:           0,
		DialTimeout:  cfg.OpTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
		// Fail fast; callers own the retry policy
		MaxRetries: -1,
	}
	if cfg.RedisSSL {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.RedisHost,
		}
	}
	return redis.NewClient(opts)
}

// New wraps a client and list name
func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

// Dial connects and verifies the Redis endpoint
func Dial(ctx context.Context, cfg cliparse.Config) (*Queue, error) {
	rdb := NewClient(cfg)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr(), err)
	}
	return New(rdb, cfg.QueueName), nil
}

// Append serialises the vote and pushes it onto the tail of the list.
func (q *Queue) Append(ctx context.Context, v models.Vote) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode vote: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.name, err)
	}
	return nil
}

// Take removes and returns the message at the head of the list, waiting at
// most wait for one to arrive. It returns ErrEmpty when the wait elapses.
// The message is gone from the list once Take returns it.
func (q *Queue) Take(ctx context.Context, wait time.Duration) ([]byte, error) {
	// BLPOP has whole-second resolution, so sub-second waits poll LPOP
	if wait >= time.Second {
		res, err := q.rdb.BLPop(ctx, wait, q.name).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("blpop %s: %w", q.name, err)
		}
		// res is [key, value]
		return []byte(res[1]), nil
	}

	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollStep)
	defer ticker.Stop()
	for {
		data, err := q.pop(ctx)
		if !errors.Is(err, ErrEmpty) || !time.Now().Before(deadline) {
			return data, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) pop(ctx context.Context) ([]byte, error) {
	data, err := q.rdb.LPop(ctx, q.name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("lpop %s: %w", q.name, err)
	}
	return data, nil
}

// Len reports how many messages are waiting
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.name, err)
	}
	return n, nil
}

func (q *Queue) Close() error {
	return q.rdb.Close()
}
