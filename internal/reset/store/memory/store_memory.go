package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"medigate/internal/reset"
	"medigate/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when no token exists for the email
// - Return ErrMismatch / ErrExpired per the reset.Store contract
// - Return nil for successful operations

// InMemoryStore keeps reset tokens in memory for tests/dev. A single mutex
// makes redemption an atomic read-validate-delete.
type InMemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*reset.Token
}

// New constructs an empty in-memory reset token store.
func New() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*reset.Token)}
}

func (s *InMemoryStore) Put(_ context.Context, token *reset.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	s.tokens[token.Email] = &copied
	return nil
}

func (s *InMemoryStore) Redeem(_ context.Context, email, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[email]
	if !ok {
		return fmt.Errorf("reset token for %s: %w", email, sentinel.ErrNotFound)
	}
	if subtle.ConstantTimeCompare([]byte(record.Token), []byte(token)) != 1 {
		return fmt.Errorf("reset token for %s: %w", email, sentinel.ErrMismatch)
	}
	// Expired tokens are consumed too; the caller must request a fresh one.
	delete(s.tokens, email)
	if now.After(record.ExpiresAt) {
		return fmt.Errorf("reset token for %s: %w", email, sentinel.ErrExpired)
	}
	return nil
}

// Run sweeps expired tokens every interval until ctx ends. The Redis store
// relies on key TTLs for this; the memory store needs the loop so abandoned
// tokens do not accumulate between redemptions.
func (s *InMemoryStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep deletes expired tokens. Returns how many were removed.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for email, record := range s.tokens {
		if now.After(record.ExpiresAt) {
			delete(s.tokens, email)
			removed++
		}
	}
	return removed
}

// Len reports the number of live tokens. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
