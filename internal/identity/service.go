package identity

import (
	"context"
	"fmt"

	"github.com/hugh/go-roster/internal/apperr"
)

// Service combines the provider and token issuer into the session operations
// the request layer needs.
type Service struct {
	provider Provider
	tokens   TokenService
}

func NewService(provider Provider, tokens TokenService) *Service {
	return &Service{provider: provider, tokens: tokens}
}

func (s *Service) Provider() Provider {
	return s.provider
}

type Session struct {
	Token    string    `json:"token"`
	Identity *Identity `json:"identity"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	ident, err := s.provider.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.Issue(ident)
}

// Issue creates a session token for an identity that has already been verified.
func (s *Service) Issue(ident *Identity) (*Session, error) {
	token, err := s.tokens.GenerateToken(ident.ID, ident.Email)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	return &Session{Token: token, Identity: ident}, nil
}

// CurrentIdentity resolves a session token. Tokens of deleted identities are
// rejected even before they expire.
func (s *Service) CurrentIdentity(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperr.Unauthorized("Authentication required")
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired session")
	}
	ident, err := s.provider.GetIdentity(ctx, claims.IdentityID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthorized("Invalid or expired session")
		}
		return nil, apperr.Wrap(err, "resolving identity")
	}
	return ident, nil
}
