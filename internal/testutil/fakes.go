package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/notify"
)

// RecordingSender captures notifications. Err, when set, is returned from
// every send after recording it.
type RecordingSender struct {
	mu       sync.Mutex
	Invites  []notify.InviteMessage
	Removals []notify.RemovalMessage
	Err      error
}

func (s *RecordingSender) SendInvite(ctx context.Context, msg notify.InviteMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Invites = append(s.Invites, msg)
	return s.Err
}

func (s *RecordingSender) SendRemoval(ctx context.Context, msg notify.RemovalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Removals = append(s.Removals, msg)
	return s.Err
}

func (s *RecordingSender) InviteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Invites)
}

// FlakyProvider wraps a provider and injects failures. AfterCreate, when
// set, runs after a successful CreateIdentity.
type FlakyProvider struct {
	identity.Provider
	CreateErr   error
	DeleteErr   error
	AfterCreate func(id uuid.UUID)

	mu      sync.Mutex
	Deleted []uuid.UUID
}

func (p *FlakyProvider) CreateIdentity(ctx context.Context, email, password string, metadata map[string]any) (uuid.UUID, error) {
	if p.CreateErr != nil {
		return uuid.Nil, p.CreateErr
	}
	id, err := p.Provider.CreateIdentity(ctx, email, password, metadata)
	if err == nil && p.AfterCreate != nil {
		p.AfterCreate(id)
	}
	return id, err
}

func (p *FlakyProvider) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	p.mu.Lock()
	p.Deleted = append(p.Deleted, id)
	p.mu.Unlock()
	if p.DeleteErr != nil {
		return p.DeleteErr
	}
	return p.Provider.DeleteIdentity(ctx, id)
}

var (
	_ notify.Sender     = (*RecordingSender)(nil)
	_ identity.Provider = (*FlakyProvider)(nil)
)
