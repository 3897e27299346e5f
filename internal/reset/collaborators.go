package reset

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InMemoryCredentials is a development stand-in for the external document
// store holding user credentials. Production deployments wire the real store
// behind the PasswordSink interface.
type InMemoryCredentials struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// NewInMemoryCredentials constructs an empty credential map.
func NewInMemoryCredentials() *InMemoryCredentials {
	return &InMemoryCredentials{hashes: make(map[string]string)}
}

func (c *InMemoryCredentials) SetPassword(_ context.Context, email, passwordHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[email] = passwordHash
	return nil
}

// PasswordHash reports the stored hash for an email. Test helper.
func (c *InMemoryCredentials) PasswordHash(email string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.hashes[email]
	return hash, ok
}

// LogNotifier records that a token was issued without revealing its value.
// Real delivery (email link) is an external sink behind the Notifier
// interface.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendResetToken(ctx context.Context, email, _ string, expiresAt time.Time) error {
	n.Logger.InfoContext(ctx, "reset token issued for out-of-band delivery",
		"email", email,
		"expires_at", expiresAt,
	)
	return nil
}
