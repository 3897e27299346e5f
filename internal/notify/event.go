// Package notify fans out role-scoped events to live client sessions.
// Delivery is best-effort and session-scoped: there is no durable inbox, and
// a subscriber only sees events published after it joined.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "medigate/pkg/domain"
)

// Event is a role- or recipient-targeted notification. ID doubles as the
// idempotency key: retried publishes of the same event reach each live
// subscriber at most once.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Role        id.Role         `json:"role"`
	RecipientID id.UserID       `json:"recipient_id,omitzero"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Broadcast reports whether the event targets every subscriber of its role.
func (e Event) Broadcast() bool { return e.RecipientID.IsNil() }
