// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danielhkuo/quickly-tally/auth"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/models"
	tu "github.com/danielhkuo/quickly-tally/testutil"
)

type failingAppender struct{}

func (failingAppender) Append(ctx context.Context, v models.Vote) error {
	return errors.New("dial tcp redis:6379: connection refused")
}

func setupVotingHandler(t *testing.T) (*VotingHandler, *miniredis.Miniredis, *metrics.Producer, cliparse.Config) {
	t.Helper()

	q, mr := tu.SetupTestQueue(t)
	cfg := tu.GetTestConfig(mr, "")
	m := metrics.NewProducer(prometheus.NewRegistry())
	return NewVotingHandler(q, cfg, m), mr, m, cfg
}

func voterCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.VoterCookie {
			return c.Value
		}
	}
	t.Fatal("response did not set voter_id cookie")
	return ""
}

func TestPage(t *testing.T) {
	handler, _, _, _ := setupVotingHandler(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.Page(w, req)

	tu.AssertStatus(t, w, http.StatusOK)
	id := voterCookie(t, w)

	var resp models.VotePageResponse
	tu.AssertJSON(t, w, &resp)
	if resp.OptionA != "Cats" || resp.OptionB != "Dogs" {
		t.Errorf("unexpected options %q/%q", resp.OptionA, resp.OptionB)
	}
	if resp.Hostname == "" {
		t.Error("expected hostname")
	}
	if resp.VoterID != id {
		t.Errorf("body voter_id %s does not match cookie %s", resp.VoterID, id)
	}
}

func TestSubmitVote(t *testing.T) {
	tests := []struct {
		name           string
		makeRequest    func() *http.Request
		expectedStatus int
		expectedQueued int
	}{
		{
			name: "form post",
			makeRequest: func() *http.Request {
				req := httptest.NewRequest("POST", "/", strings.NewReader(url.Values{"vote": {"a"}}.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			expectedStatus: http.StatusAccepted,
			expectedQueued: 1,
		},
		{
			name: "json body",
			makeRequest: func() *http.Request {
				return tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: "b"}, nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedQueued: 1,
		},
		{
			name: "choice is normalised",
			makeRequest: func() *http.Request {
				return tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: " B "}, nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedQueued: 1,
		},
		{
			name: "invalid choice",
			makeRequest: func() *http.Request {
				return tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: "c"}, nil)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing choice",
			makeRequest: func() *http.Request {
				return tu.MakeRequest("POST", "/", models.SubmitVoteRequest{}, nil)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "malformed json",
			makeRequest: func() *http.Request {
				req := httptest.NewRequest("POST", "/", strings.NewReader(`{"vote":`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mr, _, cfg := setupVotingHandler(t)

			w := httptest.NewRecorder()
			handler.Submit(w, tt.makeRequest())

			tu.AssertStatus(t, w, tt.expectedStatus)
			voterCookie(t, w)

			queued := tu.QueuedVotes(t, mr, cfg.QueueName)
			if len(queued) != tt.expectedQueued {
				t.Fatalf("expected %d queued votes, got %d", tt.expectedQueued, len(queued))
			}
		})
	}
}

func TestSubmitVote_ReusesVoterCookie(t *testing.T) {
	handler, mr, m, cfg := setupVotingHandler(t)

	for _, choice := range []string{"a", "b"} {
		req := tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: choice}, nil)
		req.AddCookie(&http.Cookie{Name: auth.VoterCookie, Value: "x1"})
		w := httptest.NewRecorder()
		handler.Submit(w, req)
		tu.AssertStatus(t, w, http.StatusAccepted)

		var resp models.SubmitVoteResponse
		tu.AssertJSON(t, w, &resp)
		if resp.VoterID != "x1" || resp.Vote != choice {
			t.Errorf("unexpected response %+v", resp)
		}
	}

	queued := tu.QueuedVotes(t, mr, cfg.QueueName)
	want := []models.Vote{{VoterID: "x1", Choice: "a"}, {VoterID: "x1", Choice: "b"}}
	if len(queued) != len(want) {
		t.Fatalf("expected %d queued votes, got %d", len(want), len(queued))
	}
	for i := range want {
		if queued[i] != want[i] {
			t.Errorf("message %d: expected %+v, got %+v", i, want[i], queued[i])
		}
	}
	if got := testutil.ToFloat64(m.Enqueued.WithLabelValues("b")); got != 1 {
		t.Errorf("expected enqueued{b} 1, got %v", got)
	}
}

func TestSubmitVote_MintsVoterID(t *testing.T) {
	handler, mr, _, cfg := setupVotingHandler(t)

	w := httptest.NewRecorder()
	handler.Submit(w, tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: "a"}, nil))
	tu.AssertStatus(t, w, http.StatusAccepted)

	minted := voterCookie(t, w)
	if err := auth.ValidateVoterID(minted); err != nil {
		t.Errorf("minted id %q invalid: %v", minted, err)
	}

	queued := tu.QueuedVotes(t, mr, cfg.QueueName)
	if len(queued) != 1 || queued[0].VoterID != minted {
		t.Errorf("queued vote should carry the minted id %s, got %+v", minted, queued)
	}
}

func TestSubmitVote_InvalidChoiceEnqueuesNothing(t *testing.T) {
	handler, mr, m, cfg := setupVotingHandler(t)

	w := httptest.NewRecorder()
	handler.Submit(w, tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: "abstain"}, nil))
	tu.AssertStatus(t, w, http.StatusBadRequest)

	if queued := tu.QueuedVotes(t, mr, cfg.QueueName); len(queued) != 0 {
		t.Errorf("expected empty queue, got %+v", queued)
	}
	if got := testutil.ToFloat64(m.Rejected); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestSubmitVote_QueueDown(t *testing.T) {
	cfg := tu.GetTestConfig(nil, "")
	m := metrics.NewProducer(prometheus.NewRegistry())
	handler := NewVotingHandler(failingAppender{}, cfg, m)

	w := httptest.NewRecorder()
	handler.Submit(w, tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: "a"}, nil))

	tu.AssertStatus(t, w, http.StatusServiceUnavailable)
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on retryable failure")
	}
	if got := testutil.ToFloat64(m.EnqueueFailures); got != 1 {
		t.Errorf("expected 1 enqueue failure, got %v", got)
	}
}

func TestSubmitVote_RedisStopped(t *testing.T) {
	handler, mr, _, _ := setupVotingHandler(t)
	mr.Close()

	w := httptest.NewRecorder()
	handler.Submit(w, tu.MakeRequest("POST", "/", models.SubmitVoteRequest{Vote: "a"}, nil))

	tu.AssertStatus(t, w, http.StatusServiceUnavailable)
}
