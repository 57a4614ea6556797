package auth

import (
	"context"
	"time"

	"github.com/phrazzld/owl-api/internal/domain"
)

// JWTService verifies bearer tokens issued by the identity provider and can
// mint equivalent tokens for development and tests.
type JWTService interface {
	// GenerateToken creates a signed access token for p.
	GenerateToken(ctx context.Context, p domain.Principal) (string, error)

	// ValidateToken verifies signature and time claims and extracts the claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject   string
	Email     string
	Role      domain.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Principal converts the claims into the identity used for authorization.
func (c *Claims) Principal() domain.Principal {
	return domain.Principal{ID: c.Subject, Email: c.Email, Role: c.Role}
}
