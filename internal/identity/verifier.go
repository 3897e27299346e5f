// Package identity turns bearer credentials into trusted, role-tagged
// identities. Verification delegates to the identity provider; every
// provider-side failure collapses into a single unauthorized error so callers
// cannot probe which accounts or tokens exist.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
)

// Verifier resolves a bearer credential to a verified identity.
type Verifier interface {
	Verify(ctx context.Context, bearer string) (*id.Identity, error)
}

// Claims are the JWT claims the identity provider signs for our tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates provider-signed HS256 tokens. Stateless and safe for
// concurrent use.
type JWTVerifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewJWTVerifier constructs a verifier for tokens issued by the provider.
func NewJWTVerifier(signingKey, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Verify validates the bearer token and resolves the caller identity.
// An empty token is rejected before any verification work. Context
// expiry surfaces as CodeUnavailable so clients can retry without
// re-prompting for credentials.
func (v *JWTVerifier) Verify(ctx context.Context, bearer string) (*id.Identity, error) {
	if bearer == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "verification cancelled", err)
	}

	parsed, err := jwt.ParseWithClaims(bearer, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithAudience(v.audience))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, dErrors.Wrap(dErrors.CodeUnavailable, "verification timed out", err)
		}
		// Expired, malformed, revoked, wrong issuer: all collapse to one code.
		return nil, dErrors.Wrap(dErrors.CodeUnauthorized, "invalid credential", err)
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}

	subject, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}
	role, valid := id.ParseRole(claims.Role)
	if !valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	return &id.Identity{
		Subject:  subject,
		Email:    claims.Email,
		Role:     role,
		IssuedAt: issuedAt,
	}, nil
}
