// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
)

// Tallier is the read side of the tally store
type Tallier interface {
	Tally(ctx context.Context) (models.Tally, error)
}

type ResultsHandler struct {
	store Tallier
	cfg   cliparse.Config
}

func NewResultsHandler(store Tallier, cfg cliparse.Config) *ResultsHandler {
	return &ResultsHandler{store: store, cfg: cfg}
}

// Scores handles GET /scores
// Returns the same aggregate the broadcaster pushes, computed on demand
func (h *ResultsHandler) Scores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OpTimeout)
	defer cancel()

	tally, err := h.store.Tally(ctx)
	if err != nil {
		slog.Error("failed to query tally", "error", err)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Database error")
		return
	}

	total := 0
	for _, n := range tally {
		total += n
	}

	middleware.JSONResponse(w, http.StatusOK, models.ScoresResponse{
		OptionA: h.cfg.OptionA,
		OptionB: h.cfg.OptionB,
		Scores:  tally,
		Total:   total,
	})
}
