// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/db"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/queue"
)

// TestDBURL returns a sqlite file URL inside the test's temp dir
func TestDBURL(t *testing.T) string {
	t.Helper()
	return "file:" + filepath.Join(t.TempDir(), "tally.db")
}

// GetTestConfig returns a standard test configuration pointing at the given
// redis server and sqlite database
func GetTestConfig(mr *miniredis.Miniredis, dbURL string) cliparse.Config {
	cfg := cliparse.Config{
		Role:          cliparse.RoleVote,
		Port:          3318,
		DatabaseURL:   dbURL,
		DatabaseType:  db.TypeSQLite,
		QueueName:     "votes",
		OptionA:       "Cats",
		OptionB:       "Dogs",
		RetryInterval: 10 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		TickInterval:  20 * time.Millisecond,
		OpTimeout:     time.Second,
	}
	if mr != nil {
		cfg.RedisHost = mr.Host()
		cfg.RedisPort, _ = strconv.Atoi(mr.Port())
	}
	return cfg
}

// SetupTestStore creates a fresh sqlite tally store with the schema applied
func SetupTestStore(t *testing.T) *db.Store {
	t.Helper()

	store, err := db.Connect(context.Background(), db.TypeSQLite, TestDBURL(t))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// SetupTestQueue starts an in-process redis and returns a connected queue
func SetupTestQueue(t *testing.T) (*queue.Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	q, err := queue.Dial(context.Background(), GetTestConfig(mr, ""))
	if err != nil {
		t.Fatalf("Failed to dial test queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, mr
}

// SeedVotes upserts n votes for choice with voter ids prefix-0..prefix-(n-1)
func SeedVotes(t *testing.T, store *db.Store, prefix, choice string, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		v := models.Vote{VoterID: prefix + "-" + strconv.Itoa(i), Choice: choice}
		if err := store.UpsertVote(context.Background(), v); err != nil {
			t.Fatalf("Failed to seed vote: %v", err)
		}
	}
}

// QueuedVotes decodes every message currently waiting in the redis list
func QueuedVotes(t *testing.T, mr *miniredis.Miniredis, name string) []models.Vote {
	t.Helper()

	items, err := mr.List(name)
	if err == miniredis.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		t.Fatalf("Failed to read queue: %v", err)
	}

	votes := make([]models.Vote, 0, len(items))
	for _, item := range items {
		var v models.Vote
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			t.Fatalf("Failed to decode queued vote %q: %v", item, err)
		}
		votes = append(votes, v)
	}
	return votes
}

// WaitFor polls cond until it holds or the timeout elapses
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
