package domain

import "time"

// Identity is a verified caller identity resolved from a bearer credential.
// It is created by the identity provider, read-only to this layer, and never
// persisted beyond request scope.
type Identity struct {
	Subject  UserID
	Email    string
	Role     Role
	IssuedAt time.Time
}

// IsAnonymous reports whether the request bypassed verification.
func (i Identity) IsAnonymous() bool { return i.Subject.IsNil() && i.Email == "" }
