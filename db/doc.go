// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db is the tally store.

# Schema Creation

CreateSchema creates the single votes table:

	CREATE TABLE IF NOT EXISTS votes (
	    voter_id TEXT NOT NULL UNIQUE,
	    choice TEXT NOT NULL
	)

Safe to call multiple times. Only the persistence worker creates schema;
Connect calls it on every (re)connect.

# Drivers

Open selects the driver from the database type:

  - postgres: github.com/lib/pq (production)
  - sqlite: modernc.org/sqlite (local dev and tests, one connection)

# Writes

UpsertVote is one statement keyed on the unique voter_id:

	INSERT INTO votes (voter_id, choice) VALUES ($1, $2)
	ON CONFLICT (voter_id) DO UPDATE SET choice = excluded.choice

Redelivered messages therefore never create a second row, and a later
choice from the same voter overwrites the earlier one. Rows are never
deleted.

# Reads

Tally aggregates choice -> COUNT(voter_id). KeepAlive runs SELECT 1 so an
idle connection dropped by an intermediary is noticed before the next write.
*/
package db
