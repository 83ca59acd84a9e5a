// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains the HTTP request handlers for the vote and result
services.

# Handler Types

  - VotingHandler: the ingestion producer (vote page and submission)
  - ResultsHandler: on-demand tally snapshot

Handlers depend on narrow interfaces rather than concrete clients:

	voting := handlers.NewVotingHandler(q, cfg, producerMetrics) // q: Appender
	results := handlers.NewResultsHandler(store, cfg)            // store: Tallier

# Voting Flow

	GET  /  → Page   (option labels, hostname, voter_id cookie)
	POST /  → Submit (form field vote=a|b, or JSON {"vote": "a"})

Submit reads the voter_id cookie, minting one if absent, and returns it as a
cookie for reuse. A valid vote is appended to the hand-off queue and the
handler answers 202 Accepted without waiting for persistence.

  - invalid or missing vote → 400, nothing enqueued
  - queue append failure    → 503 with Retry-After, nothing buffered

# Results

	GET /scores → Scores ({"scores": {"a": 2, "b": 1}, "total": 3, ...})

Live results are pushed by the broadcast package; Scores answers the same
query once for clients that poll.
*/
package handlers
