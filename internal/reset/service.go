package reset

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/sentinel"
	"medigate/pkg/requestcontext"
)

const tokenBytes = 32

// genericRedeemError is returned for not-found, mismatch, and expired alike
// so the endpoint cannot be used as an oracle for which failure occurred.
const genericRedeemError = "invalid or expired token"

// Service issues and redeems reset tokens.
type Service struct {
	store    Store
	sink     PasswordSink
	notifier Notifier
	logger   *slog.Logger
	ttl      time.Duration
}

// NewService wires the token store, the password sink the tokens protect,
// and the out-of-band notifier.
func NewService(store Store, sink PasswordSink, notifier Notifier, logger *slog.Logger, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		ttl:      ttl,
	}
}

// Issue creates a fresh token for the email, replacing any live one, and
// hands it to the notifier. The token value never travels back to the caller.
func (s *Service) Issue(ctx context.Context, email string) (*Token, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	value, err := randomToken()
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "token generation failed", err)
	}

	now := requestcontext.Now(ctx)
	token := &Token{
		Email:     email,
		Token:     value,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.Put(ctx, token); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "could not store reset token", err)
	}
	tokensIssued.Inc()

	if s.notifier != nil {
		if err := s.notifier.SendResetToken(ctx, email, value, token.ExpiresAt); err != nil {
			// The token is live; the user can retry the request to get a new
			// one. Delivery failure must not reveal anything to the caller.
			s.logger.ErrorContext(ctx, "reset token delivery failed",
				"email", email,
				"error", err,
			)
		}
	}

	return token, nil
}

// Redeem atomically consumes the token and applies the password change.
// The token is deleted before the password mutation: if the mutation fails
// afterwards the user must request a fresh token, which is safer than ever
// leaving a spent token redeemable.
func (s *Service) Redeem(ctx context.Context, email, token, newPassword string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if token == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token is required")
	}
	if len(newPassword) < 8 {
		return dErrors.New(dErrors.CodeBadRequest, "password must be at least 8 characters")
	}

	now := requestcontext.Now(ctx)
	if err := s.store.Redeem(ctx, email, token, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound),
			errors.Is(err, sentinel.ErrMismatch),
			errors.Is(err, sentinel.ErrExpired):
			redeemFailures.Inc()
			return dErrors.New(dErrors.CodeBadRequest, genericRedeemError)
		default:
			return dErrors.Wrap(dErrors.CodeInternal, "could not redeem reset token", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "password hashing failed", err)
	}
	if err := s.sink.SetPassword(ctx, email, string(hash)); err != nil {
		// Token already consumed; the user re-requests rather than replaying.
		return dErrors.Wrap(dErrors.CodeInternal, "password update failed", err)
	}
	tokensRedeemed.Inc()
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	if !strings.Contains(email, "@") {
		return dErrors.New(dErrors.CodeBadRequest, "email is invalid")
	}
	return nil
}
