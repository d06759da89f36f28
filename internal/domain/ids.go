package domain

import (
	"strings"

	dErrors "sessionhub/pkg/domainerrors"
)

// SessionID identifies a collaboration session. Unlike user and token
// identifiers, session ids are caller-supplied path segments (short,
// URL-safe strings minted by POST /sessions or chosen by a client), not
// UUIDs, so validation only rejects the empty string.
type SessionID string

func ParseSessionID(raw string) (SessionID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session id must not be empty")
	}
	return SessionID(raw), nil
}

// UserID identifies a principal, authenticated or anonymous.
type UserID string
