// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package worker drains the hand-off queue into the tally store.

A Worker cycles through three states:

  - disconnected: dialling the store, then the queue, on a fixed interval
    with no attempt limit
  - idle-polling: waiting up to PollInterval for a message; an empty poll
    pings the store so a dead connection is noticed while idle
  - applying: decoding one message and upserting it

Messages that do not decode or validate are dropped. A store connection
failure during an upsert loses that vote (it is already off the queue) and
sends the worker back to disconnected.

	wk := worker.New(cfg, dialQueue, dialStore, metrics.NewWorker(reg), logger)
	go wk.Run(ctx)

Metrics and logger may be nil.
*/
package worker
