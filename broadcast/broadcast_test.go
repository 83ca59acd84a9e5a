// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/models"
	tu "github.com/danielhkuo/quickly-tally/testutil"
)

type scoresFrame struct {
	Event string       `json:"event"`
	Data  models.Tally `json:"data"`
}

func setupHub(t *testing.T) (*Hub, *metrics.Broadcaster, *httptest.Server) {
	t.Helper()

	m := metrics.NewBroadcaster(prometheus.NewRegistry())
	hub := NewHub(models.WelcomeData{Message: "Welcome!", OptionA: "Cats", OptionB: "Dogs"}, m, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, m, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
}

func readWelcome(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	var ev struct {
		Event string             `json:"event"`
		Data  models.WelcomeData `json:"data"`
	}
	readEvent(t, conn, &ev)
	if ev.Event != models.EventWelcome {
		t.Fatalf("expected welcome event, got %s", ev.Event)
	}
}

type failingTallier struct {
	fail atomic.Bool
	next Tallier
}

func (f *failingTallier) Tally(ctx context.Context) (models.Tally, error) {
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return f.next.Tally(ctx)
}

func TestWelcomeOnConnect(t *testing.T) {
	hub, m, srv := setupHub(t)
	conn := dial(t, srv)

	var ev struct {
		Event string             `json:"event"`
		Data  models.WelcomeData `json:"data"`
	}
	readEvent(t, conn, &ev)

	if ev.Event != models.EventWelcome {
		t.Errorf("expected welcome, got %s", ev.Event)
	}
	if ev.Data.Channel != models.ChannelTally {
		t.Errorf("expected channel %s, got %s", models.ChannelTally, ev.Data.Channel)
	}
	if ev.Data.OptionA != "Cats" || ev.Data.OptionB != "Dogs" {
		t.Errorf("unexpected option labels %+v", ev.Data)
	}
	if hub.Len() != 1 {
		t.Errorf("expected 1 observer, got %d", hub.Len())
	}
	if got := testutil.ToFloat64(m.Observers); got != 1 {
		t.Errorf("expected observers gauge 1, got %v", got)
	}
}

func TestNoSnapshotUntilNextTick(t *testing.T) {
	_, _, srv := setupHub(t)
	conn := dial(t, srv)
	readWelcome(t, conn)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected no frame before the first tick")
	}
}

func TestTickBroadcastsAggregate(t *testing.T) {
	hub, m, srv := setupHub(t)
	store := tu.SetupTestStore(t)
	tu.SeedVotes(t, store, "cat", models.ChoiceA, 2)
	tu.SeedVotes(t, store, "dog", models.ChoiceB, 1)

	observers := []*websocket.Conn{dial(t, srv), dial(t, srv), dial(t, srv)}
	for _, conn := range observers {
		readWelcome(t, conn)
	}

	b := NewBroadcaster(hub, store, 20*time.Millisecond, time.Second, m, nil)
	if err := b.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i, conn := range observers {
		var ev scoresFrame
		readEvent(t, conn, &ev)
		if ev.Event != models.EventScores {
			t.Errorf("observer %d: expected scores, got %s", i, ev.Event)
		}
		if ev.Data["a"] != 2 || ev.Data["b"] != 1 {
			t.Errorf("observer %d: expected {a:2 b:1}, got %v", i, ev.Data)
		}
	}

	if got := testutil.ToFloat64(m.Ticks); got != 1 {
		t.Errorf("expected 1 tick, got %v", got)
	}
	if got := testutil.ToFloat64(m.Votes.WithLabelValues("a")); got != 2 {
		t.Errorf("expected votes{a} 2, got %v", got)
	}
}

func TestEmptyStoreBroadcastsZeros(t *testing.T) {
	hub, m, srv := setupHub(t)
	store := tu.SetupTestStore(t)
	conn := dial(t, srv)
	readWelcome(t, conn)

	b := NewBroadcaster(hub, store, 20*time.Millisecond, time.Second, m, nil)
	if err := b.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	readEvent(t, conn, &raw)
	if string(raw["data"]) != `{"a":0,"b":0}` {
		t.Errorf("expected full zero snapshot, got %s", raw["data"])
	}
}

func TestNilMetrics(t *testing.T) {
	hub := NewHub(models.WelcomeData{Message: "Welcome!"}, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	store := tu.SetupTestStore(t)
	tu.SeedVotes(t, store, "cat", models.ChoiceA, 1)

	conn := dial(t, srv)
	readWelcome(t, conn)

	b := NewBroadcaster(hub, store, 20*time.Millisecond, time.Second, nil, nil)
	if err := b.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	var ev scoresFrame
	readEvent(t, conn, &ev)
	if ev.Data["a"] != 1 {
		t.Errorf("expected a=1, got %v", ev.Data)
	}
}

func TestTickFailureKeepsObservers(t *testing.T) {
	hub, m, srv := setupHub(t)
	store := tu.SetupTestStore(t)
	tu.SeedVotes(t, store, "cat", models.ChoiceA, 1)

	conn := dial(t, srv)
	readWelcome(t, conn)

	ft := &failingTallier{next: store}
	ft.fail.Store(true)
	b := NewBroadcaster(hub, ft, 20*time.Millisecond, time.Second, m, nil)

	if err := b.Tick(context.Background()); err == nil {
		t.Fatal("expected tick error")
	}
	if hub.Len() != 1 {
		t.Errorf("observer must stay connected, hub has %d", hub.Len())
	}
	if got := testutil.ToFloat64(m.TickFailures); got != 1 {
		t.Errorf("expected 1 tick failure, got %v", got)
	}

	ft.fail.Store(false)
	if err := b.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	var ev scoresFrame
	readEvent(t, conn, &ev)
	if ev.Data["a"] != 1 {
		t.Errorf("expected a=1 after recovery, got %v", ev.Data)
	}
}

func TestRunPushesEveryTick(t *testing.T) {
	hub, m, srv := setupHub(t)
	store := tu.SetupTestStore(t)
	conn := dial(t, srv)
	readWelcome(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBroadcaster(hub, store, 20*time.Millisecond, time.Second, m, nil)
	go b.Run(ctx)

	// Unchanged counts are still pushed every tick
	for i := 0; i < 3; i++ {
		var ev scoresFrame
		readEvent(t, conn, &ev)
		if ev.Event != models.EventScores {
			t.Fatalf("expected scores, got %s", ev.Event)
		}
	}

	tu.SeedVotes(t, store, "late", models.ChoiceB, 1)
	if !waitForScores(t, conn, func(s models.Tally) bool { return s["b"] == 1 }) {
		t.Error("expected a later tick to include the new vote")
	}
}

func waitForScores(t *testing.T, conn *websocket.Conn, cond func(models.Tally) bool) bool {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var ev scoresFrame
		readEvent(t, conn, &ev)
		if cond(ev.Data) {
			return true
		}
	}
	return false
}

func TestSubscribeMovesChannel(t *testing.T) {
	hub, m, srv := setupHub(t)
	store := tu.SetupTestStore(t)
	conn := dial(t, srv)
	readWelcome(t, conn)

	err := conn.WriteJSON(models.Event{Event: models.EventSubscribe, Data: models.SubscribeData{Channel: "elsewhere"}})
	if err != nil {
		t.Fatal(err)
	}

	moved := tu.WaitFor(t, time.Second, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for o := range hub.observers {
			if o.Channel() == "elsewhere" {
				return true
			}
		}
		return false
	})
	if !moved {
		t.Fatal("observer did not change channel")
	}

	b := NewBroadcaster(hub, store, 20*time.Millisecond, time.Second, m, nil)
	if err := b.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := hub.Broadcast(models.ChannelTally, []byte(`{}`)); got != 0 {
		t.Errorf("expected no tally observers, delivered to %d", got)
	}
	if got := hub.Broadcast("elsewhere", []byte(`{}`)); got != 1 {
		t.Errorf("expected 1 observer on elsewhere, delivered to %d", got)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, m, srv := setupHub(t)
	conn := dial(t, srv)
	readWelcome(t, conn)

	conn.Close()
	if !tu.WaitFor(t, 2*time.Second, func() bool { return hub.Len() == 0 }) {
		t.Errorf("expected observer to be removed, hub has %d", hub.Len())
	}
	if got := testutil.ToFloat64(m.Observers); got != 0 {
		t.Errorf("expected observers gauge 0, got %v", got)
	}
}

// A stalled observer is evicted without blocking delivery to others.
func TestSlowObserverEvicted(t *testing.T) {
	m := metrics.NewBroadcaster(prometheus.NewRegistry())
	hub := NewHub(models.WelcomeData{}, m, nil)

	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	defer srv.Close()
	dial(t, srv)
	serverConn := <-conns
	defer serverConn.Close()

	// No write pump: the single buffer slot fills on the first frame
	stuck := &Observer{hub: hub, conn: serverConn, send: make(chan []byte, 1), channel: models.ChannelTally}
	hub.register(stuck)

	healthySrv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer healthySrv.Close()
	healthy := dial(t, healthySrv)
	readWelcome(t, healthy)

	if got := hub.Broadcast(models.ChannelTally, []byte(`{"event":"scores","data":{"a":1,"b":0}}`)); got != 2 {
		t.Errorf("expected first frame delivered to 2 observers, got %d", got)
	}
	if got := hub.Broadcast(models.ChannelTally, []byte(`{"event":"scores","data":{"a":2,"b":0}}`)); got != 1 {
		t.Errorf("expected second frame delivered to 1 observer, got %d", got)
	}

	if hub.Len() != 1 {
		t.Errorf("expected stalled observer evicted, hub has %d", hub.Len())
	}
	if got := testutil.ToFloat64(m.Evicted); got != 1 {
		t.Errorf("expected 1 eviction, got %v", got)
	}

	for _, want := range []int{1, 2} {
		var ev scoresFrame
		readEvent(t, healthy, &ev)
		if ev.Data["a"] != want {
			t.Errorf("healthy observer expected a=%d, got %v", want, ev.Data)
		}
	}
	hub.Close()
}
