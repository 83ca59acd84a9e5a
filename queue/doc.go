// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package queue is the hand-off queue between the vote producer and the
persistence worker.

The queue is a single named Redis list. Append pushes a JSON encoded
models.Vote onto the tail (RPUSH); Take pops from the head (LPOP / BLPOP)
with a bounded wait and returns ErrEmpty if nothing arrived.

There is no acknowledgement: a message returned by Take is already removed
from Redis, so a consumer that crashes before applying it loses it.
*/
package queue
