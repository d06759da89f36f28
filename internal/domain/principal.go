package domain

import "time"

// Principal is the result of verifying a bearer token: the identity claims
// a connection or request authenticated as. It carries no behavior and is
// never mutated after construction.
type Principal struct {
	UserID      UserID
	DisplayName string
	Email       string // empty if not provided
	Anonymous   bool
	ExpiresAt   time.Time
}
