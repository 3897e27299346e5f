package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"medigate/internal/reset"
	"medigate/pkg/platform/sentinel"
)

const (
	// Redis key prefix for reset tokens, keyed by email.
	resetTokenKeyPrefix = "reset:email:"
)

// redeemScript performs the compare-and-delete server-side so redemption is
// atomic across instances. Exactly one of two concurrent redemptions can
// observe "ok"; the loser sees "not_found".
//
// The script compares SHA-256 digests, never raw token values. Lua string
// comparison short-circuits on the first differing byte; comparing digests
// means that timing reveals only digest prefixes, which say nothing about the
// token itself. A mismatch leaves the record in place.
var redeemScript = redis.NewScript(`
local digest = redis.call('HGET', KEYS[1], 'token_sha256')
if not digest then
  return 'not_found'
end
if digest ~= ARGV[1] then
  return 'mismatch'
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
redis.call('DEL', KEYS[1])
if exp and exp < tonumber(ARGV[2]) then
  return 'expired'
end
return 'ok'
`)

// RedisStore is the Redis-backed reset token store. This is the
// production-recommended implementation for distributed deployments where
// multiple instances must agree on single-use redemption. Only the token's
// SHA-256 digest is stored, so neither the Redis keyspace nor the comparison
// ever touches the plaintext secret.
type RedisStore struct {
	client *redis.Client
}

// New constructs a Redis-backed reset token store.
func New(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(email string) string {
	return resetTokenKeyPrefix + email
}

// hashToken returns the hex SHA-256 digest of the token value. Fixed length,
// so the stored field never reveals anything about the token's size either.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Put stores the token digest with a TTL slightly past expiry so Redis cleans
// up unredeemed tokens on its own. HSET after DEL replaces any live token.
func (s *RedisStore) Put(ctx context.Context, token *reset.Token) error {
	key := s.key(token.Email)
	ttl := time.Until(token.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"token_sha256", hashToken(token.Token),
		"expires_at", strconv.FormatInt(token.ExpiresAt.UnixMilli(), 10),
		"created_at", strconv.FormatInt(token.CreatedAt.UnixMilli(), 10),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	return nil
}

// Redeem consumes the token via the compare-and-delete script.
func (s *RedisStore) Redeem(ctx context.Context, email, token string, now time.Time) error {
	result, err := redeemScript.Run(ctx, s.client, []string{s.key(email)},
		hashToken(token),
		strconv.FormatInt(now.UnixMilli(), 10),
	).Text()
	if err != nil {
		return fmt.Errorf("redeem reset token: %w", err)
	}

	switch result {
	case "ok":
		return nil
	case "not_found":
		return fmt.Errorf("reset token for %s: %w", email, sentinel.ErrNotFound)
	case "mismatch":
		return fmt.Errorf("reset token for %s: %w", email, sentinel.ErrMismatch)
	case "expired":
		return fmt.Errorf("reset token for %s: %w", email, sentinel.ErrExpired)
	default:
		return fmt.Errorf("redeem reset token: unexpected script result %q", result)
	}
}
