// Package audit records an immutable trail of security-relevant actions.
// Entries are append-only: once written they are never updated or deleted by
// normal operation.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	id "medigate/pkg/domain"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Well-known action names. Handlers may record additional free-form actions.
const (
	ActionAccessDenied   = "access_denied"
	ActionAccessGranted  = "access_granted"
	ActionResetRequested = "password_reset_requested"
	ActionResetRedeemed  = "password_reset_redeemed"
	ActionNotifyPublish  = "notification_published"
)

// Entry is one immutable audit record. Identity fields are denormalized at
// write time so entries stay meaningful after the user record changes.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	Subject    id.UserID       `json:"subject_id"`
	Email      string          `json:"email,omitempty"`
	Role       id.Role         `json:"role,omitempty"`
	SourceAddr string          `json:"source_addr,omitempty"`
	Action     string          `json:"action"`
	Outcome    Outcome         `json:"outcome"`
	Message    string          `json:"message,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Filter narrows a query. Zero values match everything.
type Filter struct {
	// Subject matches entries whose email or subject ID contains the string.
	Subject string
	// Action matches entries whose action contains the string.
	Action string
	// Outcome, when set, matches exactly.
	Outcome Outcome
	// Limit bounds the result count. Defaults to the recorder's window size.
	Limit int
}

// Matches reports whether the entry passes the filter.
func (f Filter) Matches(e Entry) bool {
	if f.Subject != "" &&
		!strings.Contains(e.Email, f.Subject) &&
		!strings.Contains(e.Subject.String(), f.Subject) {
		return false
	}
	if f.Action != "" && !strings.Contains(e.Action, f.Action) {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return true
}

// Store persists audit entries. Append-only: no update or delete exists.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// ListRecent returns the most recent entries, newest first, up to limit.
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
