// Package invites manages the invite lifecycle: absent, pending, then either
// accepted (terminal, kept as history) or revoked (row deleted).
package invites

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/audit"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/observability/tracing"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/roles"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/validation"
)

// MaxBatchSize bounds a single bulk invite.
const MaxBatchSize = 100

type Service struct {
	store      *store.Store
	quota      *quota.Evaluator
	locker     quota.Locker
	identities identity.Provider
	sender     notify.Sender
	audit      *audit.Recorder
	logger     *slog.Logger
}

func NewService(
	st *store.Store,
	eval *quota.Evaluator,
	locker quota.Locker,
	identities identity.Provider,
	sender notify.Sender,
	recorder *audit.Recorder,
	logger *slog.Logger,
) *Service {
	if locker == nil {
		locker = quota.NopLocker{}
	}
	return &Service{
		store:      st,
		quota:      eval,
		locker:     locker,
		identities: identities,
		sender:     sender,
		audit:      recorder,
		logger:     logger,
	}
}

type CreateInput struct {
	Email  string
	Role   models.Role
	TeamID *uuid.UUID
}

// inviteContext is what authority checks resolve before any write.
type inviteContext struct {
	actor *models.User
	org   *models.Organization
	team  *models.Team
}

// authorize resolves the inviter, organization and team and applies the
// role/team rules for an invite of role into teamID.
func (s *Service) authorize(ctx context.Context, inviterID uuid.UUID, role models.Role, teamID *uuid.UUID) (*inviteContext, error) {
	actor, err := s.store.Actor(ctx, inviterID)
	if err != nil {
		return nil, err
	}
	if err := roles.InviteShape(role, teamID); err != nil {
		return nil, err
	}

	ic := &inviteContext{actor: actor}
	if teamID != nil {
		team, err := s.store.GetTeamInOrg(ctx, actor.OrgID(), *teamID)
		if err != nil {
			return nil, err
		}
		ic.team = team
	}

	manages := ic.team != nil && ic.team.ManagedBy(actor.ID)
	if err := roles.AuthorizeInvite(actor.Role, role, manages); err != nil {
		return nil, err
	}

	org, err := s.store.GetOrganization(ctx, actor.OrgID())
	if err != nil {
		return nil, err
	}
	ic.org = org
	return ic, nil
}

// conflictFor reports why email cannot be invited into orgID, or "".
func (s *Service) conflictFor(ctx context.Context, orgID uuid.UUID, email string) (string, error) {
	ident, err := s.identities.LookupByEmail(ctx, email)
	switch {
	case err == nil:
		// Identities are unique per email and a user row reuses the identity
		// id, so an existing identity can never accept a new invite.
		user, err := s.store.GetUser(ctx, ident.ID)
		switch {
		case err == nil && user.OrganizationID != nil && *user.OrganizationID == orgID:
			return "A user with this email is already a member of the organization", nil
		case err == nil:
			return "A user with this email already belongs to another organization", nil
		case apperr.KindOf(err) == apperr.KindNotFound:
			return "An account with this email already exists", nil
		default:
			return "", err
		}
	case apperr.KindOf(err) != apperr.KindNotFound:
		return "", apperr.Wrap(err, "looking up identity")
	}

	pending, err := s.store.FindPendingInvite(ctx, orgID, email)
	if err != nil {
		return "", err
	}
	if pending != nil {
		return "A pending invite for this email already exists", nil
	}
	return "", nil
}

// Create issues a single invite.
func (s *Service) Create(ctx context.Context, inviterID uuid.UUID, in CreateInput) (_ *models.Invite, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "invites.Create")
	defer func() { tracing.Finish(span, err) }()

	email := validation.NormalizeEmail(in.Email)
	if !validation.IsValidEmail(email) {
		return nil, apperr.Validation("A valid email is required")
	}

	ic, err := s.authorize(ctx, inviterID, in.Role, in.TeamID)
	if err != nil {
		return nil, err
	}

	invite := &models.Invite{
		Email:          email,
		OrganizationID: ic.org.ID,
		TeamID:         in.TeamID,
		Role:           in.Role,
		InvitedBy:      &ic.actor.ID,
	}

	err = quota.WithLock(ctx, s.locker, ic.org.ID, func() error {
		reason, err := s.conflictFor(ctx, ic.org.ID, email)
		if err != nil {
			return err
		}
		if reason != "" {
			return apperr.Conflict(reason)
		}

		// Admin invites are not gated by the member quota.
		if in.Role == models.RoleMember {
			if err := s.quota.Require(ctx, ic.org.ID, quota.KindMember, 1); err != nil {
				return err
			}
		}

		if err := s.store.DB(ctx).Create(invite).Error; err != nil {
			return apperr.Wrap(err, "creating invite")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveInvite("created")
	s.afterCreate(ctx, ic, invite)
	return invite, nil
}

// CreateBatch invites every address or none of them. Authority and conflicts
// are checked for each email before the quota is asked for the whole batch.
func (s *Service) CreateBatch(ctx context.Context, inviterID uuid.UUID, emails []string, role models.Role, teamID *uuid.UUID) (_ []models.Invite, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "invites.CreateBatch")
	defer func() { tracing.Finish(span, err) }()

	normalized, err := normalizeBatch(emails)
	if err != nil {
		return nil, err
	}

	ic, err := s.authorize(ctx, inviterID, role, teamID)
	if err != nil {
		return nil, err
	}

	invites := make([]models.Invite, len(normalized))
	for i, email := range normalized {
		invites[i] = models.Invite{
			Email:          email,
			OrganizationID: ic.org.ID,
			TeamID:         teamID,
			Role:           role,
			InvitedBy:      &ic.actor.ID,
		}
	}

	err = quota.WithLock(ctx, s.locker, ic.org.ID, func() error {
		conflicts := map[string]string{}
		for _, email := range normalized {
			reason, err := s.conflictFor(ctx, ic.org.ID, email)
			if err != nil {
				return err
			}
			if reason != "" {
				conflicts[email] = reason
			}
		}
		if len(conflicts) > 0 {
			return apperr.Conflict("Some addresses cannot be invited").WithDetail(conflicts)
		}

		if role == models.RoleMember {
			if err := s.quota.Require(ctx, ic.org.ID, quota.KindMember, len(invites)); err != nil {
				return err
			}
		}

		return s.store.Transaction(ctx, func(tx *store.Store) error {
			if err := tx.DB(ctx).Create(&invites).Error; err != nil {
				return apperr.Wrap(err, "creating invites")
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for i := range invites {
		metrics.ObserveInvite("created")
		s.afterCreate(ctx, ic, &invites[i])
	}
	return invites, nil
}

func normalizeBatch(emails []string) ([]string, error) {
	if len(emails) == 0 {
		return nil, apperr.Validation("At least one email is required")
	}
	if len(emails) > MaxBatchSize {
		return nil, apperr.Validation(fmt.Sprintf("At most %d emails can be invited at once", MaxBatchSize))
	}

	seen := make(map[string]bool, len(emails))
	invalid := map[string]string{}
	var out []string
	for _, raw := range emails {
		email := validation.NormalizeEmail(raw)
		if email == "" {
			continue
		}
		if !validation.IsValidEmail(email) {
			invalid[raw] = "Invalid email format"
			continue
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	if len(invalid) > 0 {
		return nil, apperr.Validation("Some addresses are invalid").WithDetail(invalid)
	}
	if len(out) == 0 {
		return nil, apperr.Validation("At least one email is required")
	}
	return out, nil
}

// afterCreate runs the best-effort side effects of a new invite.
func (s *Service) afterCreate(ctx context.Context, ic *inviteContext, invite *models.Invite) {
	msg := notify.InviteMessage{
		InviteID:         invite.ID,
		Email:            invite.Email,
		OrganizationName: ic.org.Name,
		Role:             string(invite.Role),
		InviterName:      ic.actor.DisplayName,
	}
	details := map[string]any{
		"email": invite.Email,
		"role":  string(invite.Role),
	}
	if ic.team != nil {
		msg.TeamName = ic.team.Name
		details["team_id"] = ic.team.ID.String()
		details["team_name"] = ic.team.Name
	}

	s.notify(ctx, invite, msg)
	s.audit.Record(ctx, audit.Entry{
		ActorID:        ic.actor.ID,
		OrganizationID: ic.org.ID,
		Action:         models.ActionUserInvited,
		TargetType:     models.TargetInvite,
		TargetID:       invite.ID,
		Details:        details,
	})
}

func (s *Service) notify(ctx context.Context, invite *models.Invite, msg notify.InviteMessage) {
	if err := s.sender.SendInvite(ctx, msg); err != nil {
		metrics.ObserveSideEffectFailure("invite_email")
		s.logger.Warn("failed to send invite email",
			"invite_id", invite.ID,
			"org_id", invite.OrganizationID,
			"error", err,
		)
	}
}

// Validate returns a pending invite for the unauthenticated signup flow.
func (s *Service) Validate(ctx context.Context, inviteID uuid.UUID) (*models.Invite, error) {
	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Accepted {
		return nil, apperr.Gone("This invite has already been accepted")
	}
	return invite, nil
}

// Accept turns a pending invite into a membership for an identity the
// provider has already created. The accepted flag is flipped with a
// conditional update so that of two concurrent accepts only one inserts a
// user; the other gets Gone.
func (s *Service) Accept(ctx context.Context, inviteID, identityID uuid.UUID, displayName string) (_ *models.User, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "invites.Accept")
	defer func() { tracing.Finish(span, err) }()

	var user *models.User
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		now := time.Now()
		result := tx.DB(ctx).Model(&models.Invite{}).
			Where("id = ? AND accepted = ?", inviteID, false).
			Updates(map[string]any{"accepted": true, "accepted_at": now})
		if result.Error != nil {
			return apperr.Wrap(result.Error, "accepting invite")
		}

		invite, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return apperr.Gone("This invite has already been accepted")
		}

		if invite.TeamID != nil {
			if _, err := tx.GetTeamInOrg(ctx, invite.OrganizationID, *invite.TeamID); err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					return apperr.Gone("The team for this invite no longer exists")
				}
				return err
			}
		}

		orgID := invite.OrganizationID
		user = &models.User{
			Base:           models.Base{ID: identityID},
			OrganizationID: &orgID,
			TeamID:         invite.TeamID,
			Role:           invite.Role,
			DisplayName:    strings.TrimSpace(displayName),
		}
		if err := tx.DB(ctx).Create(user).Error; err != nil {
			return apperr.Wrap(err, "creating user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveInvite("accepted")
	s.logger.Info("invite accepted", "invite_id", inviteID, "user_id", user.ID, "org_id", user.OrgID())
	return user, nil
}

// AcceptWithSignup creates the invitee's identity and accepts the invite.
// The identity is deleted again when acceptance fails.
func (s *Service) AcceptWithSignup(ctx context.Context, inviteID uuid.UUID, email, password, displayName string) (*models.User, error) {
	invite, err := s.Validate(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	email = validation.NormalizeEmail(email)
	if email != invite.Email {
		return nil, apperr.Forbidden("This invite was sent to a different email address")
	}

	identityID, err := s.identities.CreateIdentity(ctx, email, password, map[string]any{
		"display_name":    displayName,
		"organization_id": invite.OrganizationID.String(),
	})
	if err != nil {
		return nil, apperr.Wrap(err, "creating identity")
	}

	user, err := s.Accept(ctx, inviteID, identityID, displayName)
	if err != nil {
		if delErr := s.identities.DeleteIdentity(ctx, identityID); delErr != nil {
			metrics.ObserveSideEffectFailure("identity_delete")
			s.logger.Error("failed to delete identity after failed accept",
				"identity_id", identityID,
				"invite_id", inviteID,
				"error", delErr,
			)
		}
		return nil, err
	}
	return user, nil
}

// loadForCaller loads an invite of the caller's organization and applies the
// same authority rules as creation.
func (s *Service) loadForCaller(ctx context.Context, callerID, inviteID uuid.UUID) (*models.User, *models.Invite, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, nil, err
	}
	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		return nil, nil, err
	}
	if invite.OrganizationID != actor.OrgID() {
		return nil, nil, apperr.NotFound("Invite not found")
	}

	manages := false
	if invite.TeamID != nil {
		team, err := s.store.GetTeamInOrg(ctx, actor.OrgID(), *invite.TeamID)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return nil, nil, err
		}
		manages = team != nil && team.ManagedBy(actor.ID)
	}
	if err := roles.AuthorizeInvite(actor.Role, invite.Role, manages); err != nil {
		return nil, nil, err
	}
	return actor, invite, nil
}

// Revoke deletes a pending invite. The create-time audit entry stands as the
// record, so no entry is appended.
func (s *Service) Revoke(ctx context.Context, callerID, inviteID uuid.UUID) error {
	_, invite, err := s.loadForCaller(ctx, callerID, inviteID)
	if err != nil {
		return err
	}
	if invite.Accepted {
		return apperr.Conflict("Accepted invites cannot be revoked; remove the member instead")
	}

	result := s.store.DB(ctx).Where("id = ? AND accepted = ?", invite.ID, false).Delete(&models.Invite{})
	if result.Error != nil {
		return apperr.Wrap(result.Error, "revoking invite")
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("Accepted invites cannot be revoked; remove the member instead")
	}

	metrics.ObserveInvite("revoked")
	s.logger.Info("invite revoked", "invite_id", invite.ID, "org_id", invite.OrganizationID, "by", callerID)
	return nil
}

// Resend sends the invite email again. It changes no state.
func (s *Service) Resend(ctx context.Context, callerID, inviteID uuid.UUID) error {
	actor, invite, err := s.loadForCaller(ctx, callerID, inviteID)
	if err != nil {
		return err
	}
	if invite.Accepted {
		return apperr.Conflict("This invite has already been accepted")
	}

	msg := notify.InviteMessage{
		InviteID:    invite.ID,
		Email:       invite.Email,
		Role:        string(invite.Role),
		InviterName: actor.DisplayName,
	}
	if invite.Organization != nil {
		msg.OrganizationName = invite.Organization.Name
	}
	if invite.TeamID != nil {
		if team, err := s.store.GetTeamInOrg(ctx, invite.OrganizationID, *invite.TeamID); err == nil {
			msg.TeamName = team.Name
		}
	}

	if err := s.sender.SendInvite(ctx, msg); err != nil {
		metrics.ObserveSideEffectFailure("email")
		s.logger.Error("failed to resend invite email", "invite_id", invite.ID, "org_id", invite.OrganizationID, "error", err)
		return apperr.Unavailable("The invite email could not be sent; try again later").WithDetail(map[string]any{"invite_id": invite.ID})
	}
	metrics.ObserveInvite("resent")
	return nil
}

// ListPending lists unaccepted invites. Admins only see invites into teams
// they manage; members see none.
func (s *Service) ListPending(ctx context.Context, callerID uuid.UUID) ([]models.Invite, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case models.RoleOwner:
		return s.store.ListPendingInvites(ctx, actor.OrgID(), nil, false)
	case models.RoleAdmin:
		teamIDs, err := s.store.ManagedTeamIDs(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return s.store.ListPendingInvites(ctx, actor.OrgID(), teamIDs, true)
	}
	return nil, apperr.Forbidden("You do not have permission to view invites")
}
