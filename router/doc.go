// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines the HTTP routes for each role.

# Vote Service

	GET  /         → VotingHandler.Page
	POST /         → VotingHandler.Submit

# Result Service

	GET  /scores   → ResultsHandler.Scores
	GET  /ws       → Hub.ServeWS (websocket push channel)
	GET  /         → banner

# Worker

	GET  /health   → worker state; 503 while disconnected

# Common

Every role serves GET /health and GET /metrics (Prometheus text format).

Routes use Go 1.22+ method patterns; unsupported methods return 405 and
"/{$}" matches only the root path.
*/
package router
