// Package domain holds the shared identifier and role types used across the
// access layer. Keeping them in one place prevents accidental mixing of
// identifiers of different kinds.
package domain

import "github.com/google/uuid"

// UserID identifies a user (patient, doctor, seller, or admin).
type UserID uuid.UUID

// IsNil reports whether the ID is the zero UUID.
func (u UserID) IsNil() bool { return uuid.UUID(u) == uuid.Nil }

// String renders the ID in canonical UUID form.
func (u UserID) String() string { return uuid.UUID(u).String() }

// MarshalText renders the ID in canonical UUID form for JSON and logs.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(u).String()), nil
}

// UnmarshalText parses a canonical UUID string.
func (u *UserID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*u = UserID(parsed)
	return nil
}

// ParseUserID parses a canonical UUID string into a UserID.
func ParseUserID(s string) (UserID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// Role is the coarse authorization group a user belongs to. Role-gated
// behavior is enforced by downstream handlers; this layer only resolves and
// carries the role.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleSeller  Role = "seller"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// ParseRole validates a role string coming off the wire.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}
