// Package identity is the boundary to the identity provider: the system that
// owns credentials and answers "who is the caller".
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Identity is what the provider knows about a caller.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Provider creates, resolves, and deletes identities.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password string, metadata map[string]any) (uuid.UUID, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
	GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error)
	LookupByEmail(ctx context.Context, email string) (*Identity, error)
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
}

// TokenService issues and validates session tokens.
type TokenService interface {
	GenerateToken(identityID uuid.UUID, email string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Provider     = (*LocalProvider)(nil)
	_ TokenService = (*JWTService)(nil)
)
