// Package organizations creates organizations at owner signup and serves
// organization settings and quota usage.
package organizations

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/audit"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/observability/tracing"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/validation"
)

type Service struct {
	store      *store.Store
	identities *identity.Service
	quota      *quota.Evaluator
	audit      *audit.Recorder
	logger     *slog.Logger
}

func NewService(st *store.Store, identities *identity.Service, eval *quota.Evaluator, recorder *audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		store:      st,
		identities: identities,
		quota:      eval,
		audit:      recorder,
		logger:     logger,
	}
}

type SignupInput struct {
	Email            string
	Password         string
	DisplayName      string
	OrganizationName string
	// TierName defaults to the free tier.
	TierName string
}

type SignupResult struct {
	Session      *identity.Session    `json:"session"`
	User         *models.User         `json:"user"`
	Organization *models.Organization `json:"organization"`
}

// Signup creates an identity, then the owner and its organization. The owner
// row is written before the organization exists and linked to it in the same
// transaction. If that transaction fails the identity is deleted again.
func (s *Service) Signup(ctx context.Context, in SignupInput) (_ *SignupResult, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "organizations.Signup")
	defer func() {
		metrics.ObserveMutation("signup", err)
		tracing.Finish(span, err)
	}()

	email := validation.NormalizeEmail(in.Email)
	if !validation.IsValidEmail(email) {
		return nil, apperr.Validation("A valid email is required")
	}
	if msg := validation.ValidateName("Display name", in.DisplayName); msg != "" {
		return nil, apperr.Validation(msg)
	}
	if msg := validation.ValidateName("Organization name", in.OrganizationName); msg != "" {
		return nil, apperr.Validation(msg)
	}

	tierName := in.TierName
	if tierName == "" {
		tierName = models.DefaultTierName
	}
	tier, err := s.store.GetTierByName(ctx, tierName)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("Unknown tier " + tierName)
		}
		return nil, err
	}

	provider := s.identities.Provider()
	identityID, err := provider.CreateIdentity(ctx, email, in.Password, map[string]any{
		"display_name": in.DisplayName,
		"signup":       "owner",
	})
	if err != nil {
		return nil, apperr.Wrap(err, "creating identity")
	}

	user := &models.User{
		Base:        models.Base{ID: identityID},
		Role:        models.RoleOwner,
		DisplayName: strings.TrimSpace(in.DisplayName),
	}
	org := &models.Organization{
		Name:    strings.TrimSpace(validation.SanitizeString(in.OrganizationName)),
		TierID:  tier.ID,
		Palette: "{}",
	}

	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.DB(ctx).Create(user).Error; err != nil {
			return apperr.Wrap(err, "creating owner")
		}
		if err := tx.DB(ctx).Create(org).Error; err != nil {
			return apperr.Wrap(err, "creating organization")
		}
		return tx.DB(ctx).Model(user).Update("organization_id", org.ID).Error
	})
	if err != nil {
		if delErr := provider.DeleteIdentity(ctx, identityID); delErr != nil {
			metrics.ObserveSideEffectFailure("identity_delete")
			s.logger.Error("failed to delete identity after failed signup",
				"identity_id", identityID,
				"error", delErr,
			)
		}
		return nil, apperr.Wrap(err, "creating organization")
	}
	user.OrganizationID = &org.ID
	org.Tier = tier

	s.audit.Record(ctx, audit.Entry{
		ActorID:        user.ID,
		OrganizationID: org.ID,
		Action:         models.ActionOrganizationCreated,
		TargetType:     models.TargetOrganization,
		TargetID:       org.ID,
		Details: map[string]any{
			"name": org.Name,
			"tier": tier.Name,
		},
	})

	session, err := s.identities.Issue(&identity.Identity{ID: identityID, Email: email})
	if err != nil {
		return nil, apperr.Wrap(err, "issuing session")
	}

	s.logger.Info("organization created", "org_id", org.ID, "owner_id", user.ID, "tier", tier.Name)
	return &SignupResult{Session: session, User: user, Organization: org}, nil
}

func (s *Service) Get(ctx context.Context, callerID uuid.UUID) (*models.Organization, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrganization(ctx, actor.OrgID())
}

type UpdateInput struct {
	Name    *string
	Palette *string
}

// Update changes the organization's cosmetic settings. Owner only.
func (s *Service) Update(ctx context.Context, callerID uuid.UUID, in UpdateInput) (_ *models.Organization, err error) {
	defer func() { metrics.ObserveMutation("organization_update", err) }()

	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleOwner {
		return nil, apperr.Forbidden("Only the owner can update the organization")
	}
	org, err := s.store.GetOrganization(ctx, actor.OrgID())
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Name != nil {
		if msg := validation.ValidateName("Name", *in.Name); msg != "" {
			return nil, apperr.Validation(msg)
		}
		if name := strings.TrimSpace(validation.SanitizeString(*in.Name)); name != org.Name {
			updates["name"] = name
		}
	}
	if in.Palette != nil {
		if ok, msg := validation.ValidatePalette(*in.Palette); !ok {
			return nil, apperr.Validation(msg)
		}
		if *in.Palette != org.Palette {
			updates["palette"] = *in.Palette
		}
	}
	if len(updates) == 0 {
		return org, nil
	}

	if err := s.store.DB(ctx).Model(org).Updates(updates).Error; err != nil {
		return nil, apperr.Wrap(err, "updating organization")
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID,
		OrganizationID: org.ID,
		Action:         models.ActionOrganizationUpdated,
		TargetType:     models.TargetOrganization,
		TargetID:       org.ID,
		Details:        updates,
	})
	return s.store.GetOrganization(ctx, org.ID)
}

// Quota reports whether one more unit of kind would be admitted.
func (s *Service) Quota(ctx context.Context, callerID uuid.UUID, kind quota.Kind) (quota.Result, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return quota.Result{}, err
	}
	return s.quota.CheckQuota(ctx, actor.OrgID(), kind)
}

// Usage reports the quota result for every kind.
func (s *Service) Usage(ctx context.Context, callerID uuid.UUID) (map[quota.Kind]quota.Result, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	usage, limits, err := s.quota.Snapshot(ctx, actor.OrgID())
	if err != nil {
		return nil, err
	}
	return map[quota.Kind]quota.Result{
		quota.KindMember: quota.Decide(quota.KindMember, usage, limits, 1),
		quota.KindTeam:   quota.Decide(quota.KindTeam, usage, limits, 1),
	}, nil
}

// Activity returns the organization's activity feed, newest first. Members
// cannot read it.
func (s *Service) Activity(ctx context.Context, callerID uuid.UUID, page, perPage int) ([]models.ActivityLog, int64, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, 0, err
	}
	if actor.Role == models.RoleMember {
		return nil, 0, apperr.Forbidden("You do not have permission to view activity")
	}
	entries, total, err := s.audit.List(ctx, actor.OrgID(), page, perPage)
	if err != nil {
		return nil, 0, apperr.Wrap(err, "listing activity")
	}
	return entries, total, nil
}
