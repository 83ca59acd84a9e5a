// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and response helpers.

# Logging

WithLogging logs request start and completion with status and duration:

	mux.HandleFunc("POST /", middleware.WithLogging(handler.Submit))

The wrapper supports http.Hijacker so websocket routes can be logged too.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusAccepted, resp)
	middleware.ErrorResponse(w, http.StatusBadRequest, "vote must be one of: a, b")
	err := middleware.ParseJSONBody(r, &req)

Error responses use models.ErrorResponse:

	{"error": "Bad Request", "message": "vote must be one of: a, b"}

# CORS

CORS echoes the request Origin (or *) and answers OPTIONS preflights.

# Client IP

GetClientIP checks X-Forwarded-For, then X-Real-IP, then RemoteAddr.
*/
package middleware
