// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package broadcast pushes live tallies to observers over websockets.

# Hub

Hub owns the set of connected observers. ServeWS upgrades a request, sends

	{"event": "welcome", "data": {"message": "Welcome!", "channel": "tally", ...}}

and joins the observer to the global tally channel. An observer may move to
another channel by sending

	{"event": "subscribe", "data": {"channel": "..."}}

Each observer has its own buffered send queue and write goroutine.
Broadcast never blocks: an observer whose buffer is full is evicted.

# Broadcaster

Broadcaster runs on a fixed interval. Every tick it recomputes the tally from
the store and sends the full snapshot

	{"event": "scores", "data": {"a": 2, "b": 1}}

whether or not the counts changed. A failed query skips that tick only.
New observers get their first snapshot on the next tick.
*/
package broadcast
