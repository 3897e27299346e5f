package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "medigate/pkg/domain"
)

// Issuer mints provider-signed bearer tokens. The production identity
// provider is external; this issuer exists for the login flow and for tests
// that need real tokens.
type Issuer struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewIssuer constructs a token issuer sharing the verifier's key material.
func NewIssuer(signingKey, issuer, audience string) *Issuer {
	return &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// IssueBearer signs an access token for the given identity.
func (s *Issuer) IssueBearer(ident id.Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: ident.Email,
		Role:  string(ident.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.Subject.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}
