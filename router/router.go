// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/quickly-tally/broadcast"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/handlers"
	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/worker"
)

// NewVoteRouter serves the ingestion producer
func NewVoteRouter(q handlers.Appender, cfg cliparse.Config, reg prometheus.Gatherer, m *metrics.Producer) *http.ServeMux {
	mux := http.NewServeMux()

	votingHandler := handlers.NewVotingHandler(q, cfg, m)

	addHealth(mux, reg)

	mux.HandleFunc("GET /{$}", middleware.WithLogging(votingHandler.Page))
	mux.HandleFunc("POST /{$}", middleware.WithLogging(votingHandler.Submit))

	return mux
}

// NewResultRouter serves the live broadcaster's push channel and snapshots
func NewResultRouter(store handlers.Tallier, hub *broadcast.Hub, cfg cliparse.Config, reg prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	resultsHandler := handlers.NewResultsHandler(store, cfg)

	addHealth(mux, reg)

	mux.HandleFunc("GET /scores", middleware.WithLogging(resultsHandler.Scores))
	mux.HandleFunc("GET /ws", middleware.WithLogging(hub.ServeWS))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quickly-tally results v1"))
	})

	return mux
}

// NewWorkerRouter exposes the worker's health and metrics.
// Health fails while the worker is disconnected.
func NewWorkerRouter(wk *worker.Worker, reg prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		state := wk.State()
		if state == worker.StateDisconnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		w.Write([]byte(state.String()))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}

func addHealth(mux *http.ServeMux, reg prometheus.Gatherer) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
