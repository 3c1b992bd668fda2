package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/database/models"
	"gorm.io/gorm"
)

// LocalProvider keeps identities in the service's own database, in a table
// that no membership row references.
type LocalProvider struct {
	db *gorm.DB
}

func NewLocalProvider(db *gorm.DB) *LocalProvider {
	return &LocalProvider{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *LocalProvider) CreateIdentity(ctx context.Context, email, password string, metadata map[string]any) (uuid.UUID, error) {
	email = normalizeEmail(email)

	var count int64
	if err := p.db.WithContext(ctx).Model(&models.Identity{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return uuid.Nil, fmt.Errorf("checking identity email: %w", err)
	}
	if count > 0 {
		return uuid.Nil, apperr.Conflict("An account with this email already exists")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hashing password: %w", err)
	}

	ident := models.Identity{
		Email:        email,
		PasswordHash: hash,
		Metadata:     metadata,
	}
	if err := p.db.WithContext(ctx).Create(&ident).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return uuid.Nil, apperr.Conflict("An account with this email already exists")
		}
		return uuid.Nil, fmt.Errorf("creating identity: %w", err)
	}
	return ident.ID, nil
}

func (p *LocalProvider) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	result := p.db.WithContext(ctx).Delete(&models.Identity{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting identity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("identity not found")
	}
	return nil
}

func (p *LocalProvider) GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error) {
	var ident models.Identity
	if err := p.db.WithContext(ctx).First(&ident, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("identity not found")
		}
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	return &Identity{ID: ident.ID, Email: ident.Email}, nil
}

func (p *LocalProvider) LookupByEmail(ctx context.Context, email string) (*Identity, error) {
	var ident models.Identity
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&ident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("identity not found")
		}
		return nil, fmt.Errorf("looking up identity: %w", err)
	}
	return &Identity{ID: ident.ID, Email: ident.Email}, nil
}

func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	var ident models.Identity
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&ident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("Invalid credentials")
		}
		return nil, fmt.Errorf("looking up identity: %w", err)
	}
	if !CheckPassword(password, ident.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	return &Identity{ID: ident.ID, Email: ident.Email}, nil
}
