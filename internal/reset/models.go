// Package reset implements single-use, time-boxed password-reset tokens.
// At most one live token exists per email, and redemption is an atomic
// compare-and-delete so a token can never be spent twice.
package reset

import (
	"context"
	"time"
)

// Token is a live reset token record. Never mutated in place: created on
// request, deleted on redemption or expiry.
type Token struct {
	Email     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store persists reset tokens keyed by email.
//
// Error Contract:
// - Redeem returns sentinel.ErrNotFound when no token exists for the email,
//   sentinel.ErrMismatch when the supplied value differs, and
//   sentinel.ErrExpired when the token is past its expiry (the record is
//   deleted in that case too).
// - Redeem must be atomic: of two concurrent redemptions for the same token,
//   exactly one succeeds and the other observes ErrNotFound or ErrMismatch.
type Store interface {
	// Put stores the token, replacing any live token for the same email.
	Put(ctx context.Context, token *Token) error
	// Redeem validates and consumes the token in a single atomic step.
	Redeem(ctx context.Context, email, token string, now time.Time) error
}

// PasswordSink applies the password mutation a redeemed token protects.
// The document store holding user credentials is an external collaborator.
type PasswordSink interface {
	SetPassword(ctx context.Context, email, passwordHash string) error
}

// Notifier delivers the issued token out-of-band (email link). Delivery
// mechanics are outside this layer.
type Notifier interface {
	SendResetToken(ctx context.Context, email, token string, expiresAt time.Time) error
}
