// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth handles voter identifiers.

A voter identifier is a client-stable token, not a verified identity. It
scopes "one current vote" per client: every submission carrying the same id
overwrites the previous choice.

# Reading and Minting

	id, minted := auth.VoterID(r)
	auth.SetVoterCookie(w, id)

VoterID reads the voter_id cookie. When it is absent or malformed a new id
is minted with GenerateVoterID (a random UUID without dashes) and must be
returned to the client so later submissions reuse it.

# Validation

ValidateVoterID accepts 1-64 characters of [A-Za-z0-9_-]. Ids minted by
older producers (hex strings) pass unchanged.
*/
package auth
