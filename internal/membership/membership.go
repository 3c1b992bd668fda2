// Package membership is the only writer of users.role and users.team_id and
// the only place a user row is deleted.
package membership

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/audit"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/observability/tracing"
	"github.com/hugh/go-roster/internal/roles"
	"github.com/hugh/go-roster/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

type Service struct {
	store      *store.Store
	identities identity.Provider
	sender     notify.Sender
	audit      *audit.Recorder
	logger     *slog.Logger
}

func NewService(st *store.Store, identities identity.Provider, sender notify.Sender, recorder *audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		store:      st,
		identities: identities,
		sender:     sender,
		audit:      recorder,
		logger:     logger,
	}
}

// Result is the caller-facing outcome of a role or team change. Message is
// safe to display verbatim.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Member is a directory entry: the membership row plus the identity's email.
type Member struct {
	models.User
	Email string `json:"email"`
}

func (s *Service) withEmail(ctx context.Context, user models.User) Member {
	m := Member{User: user}
	ident, err := s.identities.GetIdentity(ctx, user.ID)
	if err != nil {
		s.logger.Warn("identity missing for member", "user_id", user.ID, "error", err)
		return m
	}
	m.Email = ident.Email
	return m
}

// List returns the caller's organization directory.
func (s *Service) List(ctx context.Context, callerID uuid.UUID) ([]Member, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx, actor.OrgID())
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(users))
	for _, u := range users {
		members = append(members, s.withEmail(ctx, u))
	}
	return members, nil
}

func (s *Service) Get(ctx context.Context, callerID, userID uuid.UUID) (*Member, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserInOrg(ctx, actor.OrgID(), userID)
	if err != nil {
		return nil, err
	}
	m := s.withEmail(ctx, *user)
	return &m, nil
}

// RemoveMember hard-deletes a user following the removal plan, then sends
// the removal email and records the removal. The audit entry keeps the
// target's name and team as flat details because the target row is gone.
func (s *Service) RemoveMember(ctx context.Context, actorID, targetID uuid.UUID) (err error) {
	ctx, span := tracing.Tracer().Start(ctx, "membership.RemoveMember")
	span.SetAttributes(attribute.String("target_id", targetID.String()))
	defer func() {
		metrics.ObserveMutation("remove", err)
		tracing.Finish(span, err)
	}()

	actor, err := s.store.Actor(ctx, actorID)
	if err != nil {
		return err
	}
	orgID := actor.OrgID()
	target, err := s.store.GetUserInOrg(ctx, orgID, targetID)
	if err != nil {
		return err
	}

	var team *models.Team
	if target.TeamID != nil {
		team, err = s.store.GetTeamInOrg(ctx, orgID, *target.TeamID)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
	}

	err = roles.AuthorizeRemoval(roles.Removal{
		CallerID:                actor.ID,
		CallerRole:              actor.Role,
		TargetID:                target.ID,
		TargetRole:              target.Role,
		CallerManagesTargetTeam: team != nil && team.ManagedBy(actor.ID),
	})
	if err != nil {
		return err
	}

	// Captured before anything is deleted.
	email := ""
	if ident, err := s.identities.GetIdentity(ctx, target.ID); err == nil {
		email = ident.Email
	} else {
		s.logger.Warn("could not resolve email of member being removed", "user_id", target.ID, "error", err)
	}

	outcome, err := s.removalPlan(orgID, target).Execute(ctx, s.logger)
	if err != nil {
		s.logger.Error("member removal aborted",
			"org_id", orgID,
			"user_id", target.ID,
			"completed", outcome.Completed,
			"error", err,
		)
		return apperr.Wrap(err, "removing member")
	}
	if _, failed := outcome.AdvisoryFailures[StepDeleteIdentity]; failed {
		metrics.ObserveSideEffectFailure("identity_delete")
	}

	org, orgErr := s.store.GetOrganization(ctx, orgID)
	if email != "" {
		msg := notify.RemovalMessage{Email: email, DisplayName: target.DisplayName}
		if orgErr == nil {
			msg.OrganizationName = org.Name
		}
		if err := s.sender.SendRemoval(ctx, msg); err != nil {
			metrics.ObserveSideEffectFailure("removal_email")
			s.logger.Warn("failed to send removal email", "user_id", target.ID, "error", err)
		}
	}

	details := map[string]any{
		"display_name": target.DisplayName,
		"role":         string(target.Role),
		"email":        email,
	}
	if team != nil {
		details["team_id"] = team.ID.String()
		details["team_name"] = team.Name
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID,
		OrganizationID: orgID,
		Action:         models.ActionUserDeleted,
		TargetType:     models.TargetUser,
		TargetID:       target.ID,
		Details:        details,
	})

	s.logger.Info("member removed", "org_id", orgID, "user_id", target.ID, "by", actor.ID)
	return nil
}

// removalPlan lists the cleanup needed to delete target without leaving
// rows that reference it.
func (s *Service) removalPlan(orgID uuid.UUID, target *models.User) Plan {
	return Plan{
		{
			Name: StepClearAuthoredRows,
			Run: func(ctx context.Context) error {
				return s.store.DB(ctx).Where("actor_id = ?", target.ID).Delete(&models.ActivityLog{}).Error
			},
		},
		{
			Name: StepReassignCreatedBy,
			Run: func(ctx context.Context) error {
				db := s.store.DB(ctx)
				if err := db.Model(&models.Team{}).Where("created_by = ?", target.ID).Update("created_by", nil).Error; err != nil {
					return err
				}
				if err := db.Model(&models.Team{}).Where("manager_id = ?", target.ID).Update("manager_id", nil).Error; err != nil {
					return err
				}
				return db.Model(&models.Invite{}).Where("invited_by = ?", target.ID).Update("invited_by", nil).Error
			},
		},
		{
			Name: StepDeleteMembershipRow,
			Run: func(ctx context.Context) error {
				result := s.store.DB(ctx).
					Where("id = ? AND organization_id = ?", target.ID, orgID).
					Delete(&models.User{})
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return apperr.NotFound("User not found")
				}
				return nil
			},
		},
		{
			Name:     StepDeleteIdentity,
			Advisory: true,
			Run: func(ctx context.Context) error {
				return s.identities.DeleteIdentity(ctx, target.ID)
			},
		},
	}
}

// MoveMember moves a member to another team of the same organization.
func (s *Service) MoveMember(ctx context.Context, actorID, targetID, newTeamID uuid.UUID) (_ Result, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "membership.MoveMember")
	defer func() {
		metrics.ObserveMutation("move", err)
		tracing.Finish(span, err)
	}()

	actor, err := s.store.Actor(ctx, actorID)
	if err != nil {
		return Result{}, err
	}
	target, err := s.store.GetUserInOrg(ctx, actor.OrgID(), targetID)
	if err != nil {
		return Result{}, err
	}
	if actor.Role != models.RoleOwner {
		return Result{}, apperr.Forbidden("Only the owner can move members")
	}
	if target.Role != models.RoleMember {
		return Result{}, apperr.Validation("Only members can be moved between teams")
	}

	return s.apply(ctx, actor, target, models.RoleMember, &newTeamID)
}

// ChangeRole promotes, demotes or moves a user according to the transition
// table.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID uuid.UUID, newRole models.Role, newTeamID *uuid.UUID) (_ Result, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "membership.ChangeRole")
	span.SetAttributes(attribute.String("new_role", string(newRole)))
	defer func() {
		metrics.ObserveMutation("change_role", err)
		tracing.Finish(span, err)
	}()

	actor, err := s.store.Actor(ctx, actorID)
	if err != nil {
		return Result{}, err
	}
	target, err := s.store.GetUserInOrg(ctx, actor.OrgID(), targetID)
	if err != nil {
		return Result{}, err
	}
	return s.apply(ctx, actor, target, newRole, newTeamID)
}

// apply validates the transition, writes it and records it.
func (s *Service) apply(ctx context.Context, actor, target *models.User, newRole models.Role, newTeamID *uuid.UUID) (Result, error) {
	plan, err := roles.Validate(roles.Request{
		CallerRole:    actor.Role,
		CurrentRole:   target.Role,
		CurrentTeamID: target.TeamID,
		NewRole:       newRole,
		NewTeamID:     newTeamID,
	})
	if err != nil {
		return Result{}, err
	}

	var team *models.Team
	if plan.TeamID != nil {
		team, err = s.store.GetTeamInOrg(ctx, actor.OrgID(), *plan.TeamID)
		if err != nil {
			return Result{}, err
		}
	}

	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		// Guarded on the role we validated against.
		result := tx.DB(ctx).Model(&models.User{}).
			Where("id = ? AND role = ?", target.ID, target.Role).
			Updates(map[string]any{"role": plan.Role, "team_id": plan.TeamID})
		if result.Error != nil {
			return apperr.Wrap(result.Error, "updating user")
		}
		if result.RowsAffected == 0 {
			return apperr.Conflict("This user was changed by someone else, please reload")
		}

		if plan.ReleaseManagedTeams {
			err := tx.DB(ctx).Model(&models.Team{}).
				Where("manager_id = ?", target.ID).
				Update("manager_id", nil).Error
			if err != nil {
				return apperr.Wrap(err, "releasing managed teams")
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	details := map[string]any{
		"display_name": target.DisplayName,
		"from_role":    string(target.Role),
		"to_role":      string(plan.Role),
	}
	if target.TeamID != nil {
		details["from_team_id"] = target.TeamID.String()
	}
	if team != nil {
		details["to_team_id"] = team.ID.String()
		details["to_team_name"] = team.Name
	}

	action := models.ActionRoleChanged
	if plan.Kind == roles.ChangeTeamMove {
		action = models.ActionMemberMoved
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID,
		OrganizationID: actor.OrgID(),
		Action:         action,
		TargetType:     models.TargetUser,
		TargetID:       target.ID,
		Details:        details,
	})

	s.logger.Info("membership changed",
		"org_id", actor.OrgID(),
		"user_id", target.ID,
		"kind", plan.Kind,
		"role", plan.Role,
	)
	return Result{Success: true, Message: plan.Message}, nil
}
