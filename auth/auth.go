// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VoterCookie is the cookie carrying the client-stable voter identifier
const VoterCookie = "voter_id"

// voterCookieMaxAge keeps the identifier across browser restarts
const voterCookieMaxAge = 365 * 24 * time.Hour

var ErrInvalidVoterID = errors.New("invalid voter id")

// GenerateVoterID mints a new random voter identifier.
// Dashes are stripped so ids stay compact in cookies and queue payloads.
func GenerateVoterID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateVoterID rejects identifiers that could not have come from a client cookie
func ValidateVoterID(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidVoterID
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return ErrInvalidVoterID
		}
	}
	return nil
}

// VoterID returns the caller's voter id, minting one when the cookie is
// missing or malformed. minted reports whether a new id was issued.
func VoterID(r *http.Request) (id string, minted bool) {
	if c, err := r.Cookie(VoterCookie); err == nil {
		if ValidateVoterID(c.Value) == nil {
			return c.Value, false
		}
	}
	return GenerateVoterID(), true
}

// SetVoterCookie hands the voter id back to the client for reuse
func SetVoterCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     VoterCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(voterCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
