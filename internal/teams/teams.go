// Package teams manages teams inside an organization. Creating a team is a
// quota-gated growth operation.
package teams

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/audit"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/observability/tracing"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/roles"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/validation"
)

type Service struct {
	store  *store.Store
	quota  *quota.Evaluator
	locker quota.Locker
	audit  *audit.Recorder
	logger *slog.Logger
}

func NewService(st *store.Store, eval *quota.Evaluator, locker quota.Locker, recorder *audit.Recorder, logger *slog.Logger) *Service {
	if locker == nil {
		locker = quota.NopLocker{}
	}
	return &Service{
		store:  st,
		quota:  eval,
		locker: locker,
		audit:  recorder,
		logger: logger,
	}
}

// Team is a team with the number of users currently assigned to it.
type Team struct {
	models.Team
	MemberCount int64 `json:"member_count"`
}

type CreateInput struct {
	Name      string
	ManagerID *uuid.UUID
}

// UpdateInput changes only the fields that are set. ClearManager leaves the
// team unmanaged and wins over ManagerID.
type UpdateInput struct {
	Name         *string
	ManagerID    *uuid.UUID
	ClearManager bool
}

func (s *Service) List(ctx context.Context, callerID uuid.UUID) ([]Team, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.ListTeams(ctx, actor.OrgID())
	if err != nil {
		return nil, err
	}
	counts, err := s.store.TeamMemberCounts(ctx, actor.OrgID())
	if err != nil {
		return nil, err
	}

	out := make([]Team, 0, len(teams))
	for _, t := range teams {
		out = append(out, Team{Team: t, MemberCount: counts[t.ID]})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, callerID, teamID uuid.UUID) (*Team, error) {
	actor, err := s.store.Actor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	team, err := s.store.GetTeamInOrg(ctx, actor.OrgID(), teamID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountTeamMembers(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	return &Team{Team: *team, MemberCount: count}, nil
}

// resolveManager checks that managerID is an admin of orgID.
func (s *Service) resolveManager(ctx context.Context, orgID, managerID uuid.UUID) (*models.User, error) {
	manager, err := s.store.GetUserInOrg(ctx, orgID, managerID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("Manager must be a user of this organization")
		}
		return nil, err
	}
	if manager.Role != models.RoleAdmin {
		return nil, apperr.Validation("Manager must be an admin")
	}
	return manager, nil
}

// Create adds a team. Teams created by an admin are managed by that admin;
// the owner may name any admin or leave the team unmanaged.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in CreateInput) (_ *models.Team, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "teams.Create")
	defer func() {
		metrics.ObserveMutation("team_create", err)
		tracing.Finish(span, err)
	}()

	if msg := validation.ValidateName("Name", in.Name); msg != "" {
		return nil, apperr.Validation(msg)
	}

	actor, err := s.store.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	orgID := actor.OrgID()

	team := &models.Team{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(validation.SanitizeString(in.Name)),
		CreatedBy:      &actor.ID,
	}

	switch actor.Role {
	case models.RoleOwner:
		if in.ManagerID != nil {
			manager, err := s.resolveManager(ctx, orgID, *in.ManagerID)
			if err != nil {
				return nil, err
			}
			team.ManagerID = &manager.ID
		}
	case models.RoleAdmin:
		if in.ManagerID != nil && *in.ManagerID != actor.ID {
			return nil, apperr.Forbidden("Admins can only create teams they manage")
		}
		team.ManagerID = &actor.ID
	default:
		return nil, apperr.Forbidden("You do not have permission to create teams")
	}

	err = quota.WithLock(ctx, s.locker, orgID, func() error {
		if err := s.quota.Require(ctx, orgID, quota.KindTeam, 1); err != nil {
			return err
		}
		if err := s.store.DB(ctx).Create(team).Error; err != nil {
			return apperr.Wrap(err, "creating team")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{"name": team.Name}
	if team.ManagerID != nil {
		details["manager_id"] = team.ManagerID.String()
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID,
		OrganizationID: orgID,
		Action:         models.ActionTeamCreated,
		TargetType:     models.TargetTeam,
		TargetID:       team.ID,
		Details:        details,
	})

	s.logger.Info("team created", "org_id", orgID, "team_id", team.ID, "by", actor.ID)
	return team, nil
}

// Update renames a team or changes its manager. The managing admin may only
// rename.
func (s *Service) Update(ctx context.Context, actorID, teamID uuid.UUID, in UpdateInput) (_ *models.Team, err error) {
	defer func() { metrics.ObserveMutation("team_update", err) }()

	actor, err := s.store.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	orgID := actor.OrgID()
	team, err := s.store.GetTeamInOrg(ctx, orgID, teamID)
	if err != nil {
		return nil, err
	}
	if !roles.CanManageTeam(actor.Role, actor.ID, team) {
		return nil, apperr.Forbidden("You do not have permission to update this team")
	}

	updates := map[string]any{}
	details := map[string]any{}

	if in.Name != nil {
		if msg := validation.ValidateName("Name", *in.Name); msg != "" {
			return nil, apperr.Validation(msg)
		}
		name := strings.TrimSpace(validation.SanitizeString(*in.Name))
		if name != team.Name {
			updates["name"] = name
			details["old_name"] = team.Name
			details["new_name"] = name
		}
	}

	if in.ClearManager || in.ManagerID != nil {
		if actor.Role != models.RoleOwner {
			return nil, apperr.Forbidden("Only the owner can change a team's manager")
		}
		var managerID *uuid.UUID
		if !in.ClearManager {
			manager, err := s.resolveManager(ctx, orgID, *in.ManagerID)
			if err != nil {
				return nil, err
			}
			managerID = &manager.ID
		}
		if !sameID(team.ManagerID, managerID) {
			updates["manager_id"] = managerID
			details["manager_id"] = idString(managerID)
		}
	}

	if len(updates) == 0 {
		return team, nil
	}

	if err := s.store.DB(ctx).Model(team).Updates(updates).Error; err != nil {
		return nil, apperr.Wrap(err, "updating team")
	}
	team, err = s.store.GetTeamInOrg(ctx, orgID, teamID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID,
		OrganizationID: orgID,
		Action:         models.ActionTeamUpdated,
		TargetType:     models.TargetTeam,
		TargetID:       team.ID,
		Details:        details,
	})
	return team, nil
}

// Delete removes an empty team together with its pending invites.
func (s *Service) Delete(ctx context.Context, actorID, teamID uuid.UUID) (err error) {
	ctx, span := tracing.Tracer().Start(ctx, "teams.Delete")
	defer func() {
		metrics.ObserveMutation("team_delete", err)
		tracing.Finish(span, err)
	}()

	actor, err := s.store.Actor(ctx, actorID)
	if err != nil {
		return err
	}
	orgID := actor.OrgID()
	team, err := s.store.GetTeamInOrg(ctx, orgID, teamID)
	if err != nil {
		return err
	}
	if !roles.CanManageTeam(actor.Role, actor.ID, team) {
		return apperr.Forbidden("You do not have permission to delete this team")
	}

	var revoked int64
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		count, err := tx.CountTeamMembers(ctx, team.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("Move or remove the team's members before deleting it").
				WithDetail(map[string]any{"member_count": count})
		}

		result := tx.DB(ctx).
			Where("team_id = ? AND accepted = ?", team.ID, false).
			Delete(&models.Invite{})
		if result.Error != nil {
			return apperr.Wrap(result.Error, "deleting pending invites")
		}
		revoked = result.RowsAffected

		if err := tx.DB(ctx).Delete(&models.Team{}, "id = ?", team.ID).Error; err != nil {
			return apperr.Wrap(err, "deleting team")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:        actor.ID,
		OrganizationID: orgID,
		Action:         models.ActionTeamDeleted,
		TargetType:     models.TargetTeam,
		TargetID:       team.ID,
		Details: map[string]any{
			"name":            team.Name,
			"revoked_invites": revoked,
		},
	})

	s.logger.Info("team deleted", "org_id", orgID, "team_id", team.ID, "revoked_invites", revoked)
	return nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func idString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
