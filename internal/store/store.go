// Package store holds the shared lookups the membership services issue
// against the relational store.
package store

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

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle bound to ctx.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Transaction runs fn with a Store bound to a single transaction. fn must
// only use the Store it is given.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what + " not found")
	}
	return fmt.Errorf("loading %s: %w", strings.ToLower(what), err)
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := s.DB(ctx).Preload("Tier").First(&org, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Organization")
	}
	return &org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	var orgs []models.Organization
	if err := s.DB(ctx).Preload("Tier").Order("created_at").Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	return orgs, nil
}

func (s *Store) GetTierByName(ctx context.Context, name string) (*models.Tier, error) {
	var tier models.Tier
	if err := s.DB(ctx).Where("name = ?", name).First(&tier).Error; err != nil {
		return nil, notFound(err, "Tier")
	}
	return &tier, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "User")
	}
	return &user, nil
}

// Actor loads the calling user. A caller without a membership row is not
// authenticated as far as membership operations are concerned.
func (s *Store) Actor(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthorized("No membership for this account")
		}
		return nil, err
	}
	if user.OrganizationID == nil {
		return nil, apperr.Unauthorized("No membership for this account")
	}
	return user, nil
}

// GetUserInOrg treats users of other organizations as absent.
func (s *Store) GetUserInOrg(ctx context.Context, orgID, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.DB(ctx).Where("organization_id = ?", orgID).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "User")
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	var users []models.User
	if err := s.DB(ctx).Where("organization_id = ?", orgID).Order("created_at").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (s *Store) GetTeamInOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Team, error) {
	var team models.Team
	if err := s.DB(ctx).Where("organization_id = ?", orgID).First(&team, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Team")
	}
	return &team, nil
}

func (s *Store) ListTeams(ctx context.Context, orgID uuid.UUID) ([]models.Team, error) {
	var teams []models.Team
	if err := s.DB(ctx).Where("organization_id = ?", orgID).Order("created_at").Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	return teams, nil
}

// ManagedTeamIDs returns the teams adminID currently manages.
func (s *Store) ManagedTeamIDs(ctx context.Context, adminID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.DB(ctx).Model(&models.Team{}).Where("manager_id = ?", adminID).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing managed teams: %w", err)
	}
	return ids, nil
}

func (s *Store) CountMembers(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	if err := s.DB(ctx).Model(&models.User{}).Where("organization_id = ?", orgID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return count, nil
}

func (s *Store) CountTeams(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	if err := s.DB(ctx).Model(&models.Team{}).Where("organization_id = ?", orgID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting teams: %w", err)
	}
	return count, nil
}

func (s *Store) CountTeamMembers(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var count int64
	if err := s.DB(ctx).Model(&models.User{}).Where("team_id = ?", teamID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting team members: %w", err)
	}
	return count, nil
}

// TeamMemberCounts maps team id to the number of users assigned to it.
func (s *Store) TeamMemberCounts(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []struct {
		TeamID uuid.UUID
		Count  int64
	}
	err := s.DB(ctx).Model(&models.User{}).
		Select("team_id, count(*) as count").
		Where("organization_id = ? AND team_id IS NOT NULL", orgID).
		Group("team_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting team members: %w", err)
	}
	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.TeamID] = row.Count
	}
	return counts, nil
}

func (s *Store) GetInvite(ctx context.Context, id uuid.UUID) (*models.Invite, error) {
	var invite models.Invite
	if err := s.DB(ctx).Preload("Organization").First(&invite, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Invite")
	}
	return &invite, nil
}

// FindPendingInvite returns the unaccepted invite for email in orgID, or nil.
func (s *Store) FindPendingInvite(ctx context.Context, orgID uuid.UUID, email string) (*models.Invite, error) {
	var invite models.Invite
	err := s.DB(ctx).
		Where("organization_id = ? AND email = ? AND accepted = ?", orgID, email, false).
		First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up pending invite: %w", err)
	}
	return &invite, nil
}

// ListPendingInvites lists unaccepted invites. With restrict set only
// invites into teamIDs are returned.
func (s *Store) ListPendingInvites(ctx context.Context, orgID uuid.UUID, teamIDs []uuid.UUID, restrict bool) ([]models.Invite, error) {
	query := s.DB(ctx).Where("organization_id = ? AND accepted = ?", orgID, false)
	if restrict {
		if len(teamIDs) == 0 {
			return []models.Invite{}, nil
		}
		query = query.Where("team_id IN ?", teamIDs)
	}
	var invites []models.Invite
	if err := query.Order("created_at DESC").Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	return invites, nil
}
