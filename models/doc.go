// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the queue payload, tally, HTTP and push event types.

# Queue Payload

Vote is the message carried on the hand-off queue:

	{"voter_id": "4f1c...", "vote": "a"}

# Tally

Tally maps each choice to its current count. NewTally seeds every valid
choice with zero so observers always see both options.

# Request and Response Types

  - SubmitVoteRequest: vote
  - VotePageResponse: option_a, option_b, hostname, voter_id
  - SubmitVoteResponse: voter_id, vote, hostname, message
  - ScoresResponse: option labels, scores, total
  - ErrorResponse: error, message

# Push Events

Observers receive Event frames:

	{"event": "welcome", "data": {...}}
	{"event": "scores", "data": {"a": 2, "b": 1}}

# Constants

Choices:

	ChoiceA = "a"
	ChoiceB = "b"
*/
package models
