// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/danielhkuo/quickly-tally/auth"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
)

// Appender is the producing side of the hand-off queue
type Appender interface {
	Append(ctx context.Context, v models.Vote) error
}

type VotingHandler struct {
	queue    Appender
	cfg      cliparse.Config
	metrics  *metrics.Producer
	hostname string
}

func NewVotingHandler(q Appender, cfg cliparse.Config, m *metrics.Producer) *VotingHandler {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &VotingHandler{queue: q, cfg: cfg, metrics: m, hostname: hostname}
}

// Page handles GET /
// Returns the option labels and hands the caller a voter_id cookie
func (h *VotingHandler) Page(w http.ResponseWriter, r *http.Request) {
	voterID, _ := auth.VoterID(r)
	auth.SetVoterCookie(w, voterID)

	middleware.JSONResponse(w, http.StatusOK, models.VotePageResponse{
		OptionA:  h.cfg.OptionA,
		OptionB:  h.cfg.OptionB,
		Hostname: h.hostname,
		VoterID:  voterID,
	})
}

// Submit handles POST /
// Enqueues the vote and returns without waiting for it to be persisted
func (h *VotingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	voterID, minted := auth.VoterID(r)
	auth.SetVoterCookie(w, voterID)

	// Accept the original form post as well as JSON
	var choice string
	if middleware.IsJSON(r) {
		var req models.SubmitVoteRequest
		if err := middleware.ParseJSONBody(r, &req); err != nil {
			h.metrics.Rejected.Inc()
			middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		choice = req.Vote
	} else {
		choice = r.FormValue("vote")
	}
	choice = strings.ToLower(strings.TrimSpace(choice))

	if choice == "" {
		h.metrics.Rejected.Inc()
		middleware.ErrorResponse(w, http.StatusBadRequest, "vote is required")
		return
	}
	if !models.ValidChoice(choice) {
		h.metrics.Rejected.Inc()
		middleware.ErrorResponse(w, http.StatusBadRequest, "vote must be one of: "+strings.Join(models.Choices, ", "))
		return
	}

	vote := models.Vote{VoterID: voterID, Choice: choice}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OpTimeout)
	defer cancel()
	if err := h.queue.Append(ctx, vote); err != nil {
		h.metrics.EnqueueFailures.Inc()
		slog.Error("failed to enqueue vote", "error", err, "voter_id", voterID)
		w.Header().Set("Retry-After", "1")
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Vote could not be recorded, try again")
		return
	}

	h.metrics.Enqueued.WithLabelValues(choice).Inc()
	slog.Info("received vote", "vote", choice, "voter_id", voterID, "new_voter", minted)

	middleware.JSONResponse(w, http.StatusAccepted, models.SubmitVoteResponse{
		VoterID:  voterID,
		Vote:     choice,
		Hostname: h.hostname,
		Message:  "Vote received",
	})
}
