// Package roles is the single home of the role and team rules. Every
// mutation path asks it before writing role or team_id.
package roles

import (
	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/database/models"
)

type ChangeKind string

const (
	ChangePromotion ChangeKind = "promotion"
	ChangeDemotion  ChangeKind = "demotion"
	ChangeTeamMove  ChangeKind = "team_move"
)

// Request describes a requested role or team change.
type Request struct {
	CallerRole    models.Role
	CurrentRole   models.Role
	CurrentTeamID *uuid.UUID
	NewRole       models.Role
	NewTeamID     *uuid.UUID
}

// Plan is what the mutator must write when a transition is legal.
type Plan struct {
	Kind   ChangeKind
	Role   models.Role
	TeamID *uuid.UUID
	// ReleaseManagedTeams is set when the target stops being an admin; any
	// team it manages becomes unmanaged.
	ReleaseManagedTeams bool
	Message             string
}

// Validate applies the transition table. It never guesses a team and does
// not check that the team exists; callers resolve the team in the same
// organization first.
func Validate(req Request) (Plan, error) {
	if !req.NewRole.Valid() {
		return Plan{}, apperr.Validation("role must be admin or member")
	}
	if req.CurrentRole == models.RoleOwner {
		return Plan{}, apperr.Forbidden("The owner's role cannot be changed")
	}
	if req.NewRole == models.RoleOwner {
		return Plan{}, apperr.Forbidden("An organization has exactly one owner")
	}
	if req.CallerRole != models.RoleOwner {
		return Plan{}, apperr.Forbidden("Only the owner can change roles or move members")
	}

	switch {
	case req.CurrentRole == models.RoleMember && req.NewRole == models.RoleAdmin:
		// Team affiliation is dropped; admins never belong to a team.
		return Plan{
			Kind:    ChangePromotion,
			Role:    models.RoleAdmin,
			TeamID:  nil,
			Message: "Member promoted to admin",
		}, nil

	case req.CurrentRole == models.RoleAdmin && req.NewRole == models.RoleMember:
		if req.NewTeamID == nil {
			return Plan{}, apperr.Validation("team required")
		}
		return Plan{
			Kind:                ChangeDemotion,
			Role:                models.RoleMember,
			TeamID:              req.NewTeamID,
			ReleaseManagedTeams: true,
			Message:             "Admin demoted to member",
		}, nil

	case req.CurrentRole == models.RoleMember && req.NewRole == models.RoleMember:
		if req.NewTeamID == nil {
			return Plan{}, apperr.Validation("team required")
		}
		if req.CurrentTeamID != nil && *req.CurrentTeamID == *req.NewTeamID {
			return Plan{}, apperr.NoOp("Member is already in this team")
		}
		return Plan{
			Kind:    ChangeTeamMove,
			Role:    models.RoleMember,
			TeamID:  req.NewTeamID,
			Message: "Member moved to new team",
		}, nil

	case req.CurrentRole == models.RoleAdmin && req.NewRole == models.RoleAdmin:
		return Plan{}, apperr.NoOp("User is already an admin")
	}

	return Plan{}, apperr.Validation("unsupported role transition")
}

// Removal describes who is removing whom.
type Removal struct {
	CallerID   uuid.UUID
	CallerRole models.Role
	TargetID   uuid.UUID
	TargetRole models.Role
	// CallerManagesTargetTeam is true when the target is a member of a team
	// the caller manages.
	CallerManagesTargetTeam bool
}

// AuthorizeRemoval applies the removal matrix.
func AuthorizeRemoval(r Removal) error {
	if r.CallerID == r.TargetID {
		return apperr.Forbidden("You cannot remove yourself")
	}
	switch r.TargetRole {
	case models.RoleOwner:
		return apperr.Forbidden("The owner cannot be removed")
	case models.RoleAdmin:
		if r.CallerRole != models.RoleOwner {
			return apperr.Forbidden("Only the owner can remove an admin")
		}
		return nil
	case models.RoleMember:
		switch r.CallerRole {
		case models.RoleOwner:
			return nil
		case models.RoleAdmin:
			if !r.CallerManagesTargetTeam {
				return apperr.Forbidden("Admins can only remove members of teams they manage")
			}
			return nil
		}
	}
	return apperr.Forbidden("You do not have permission to remove this user")
}

// AuthorizeInvite checks the inviter's authority over the invited role.
// An admin may only invite members into a team it manages.
func AuthorizeInvite(inviterRole, role models.Role, inviterManagesTeam bool) error {
	if !role.Invitable() {
		return apperr.Validation("role must be admin or member")
	}
	switch inviterRole {
	case models.RoleOwner:
		return nil
	case models.RoleAdmin:
		if role == models.RoleAdmin {
			return apperr.Forbidden("Only the owner can invite admins")
		}
		if !inviterManagesTeam {
			return apperr.Forbidden("Admins can only invite into teams they manage")
		}
		return nil
	}
	return apperr.Forbidden("You do not have permission to invite users")
}

// InviteShape checks the role/team pairing of an invite.
func InviteShape(role models.Role, teamID *uuid.UUID) error {
	switch role {
	case models.RoleAdmin:
		if teamID != nil {
			return apperr.Validation("admin invites cannot carry a team")
		}
	case models.RoleMember:
		if teamID == nil {
			return apperr.Validation("team required")
		}
	default:
		return apperr.Validation("role must be admin or member")
	}
	return nil
}

// CanManageTeam reports whether a caller may administer a team: the owner
// always, an admin only for teams it manages.
func CanManageTeam(callerRole models.Role, callerID uuid.UUID, team *models.Team) bool {
	switch callerRole {
	case models.RoleOwner:
		return true
	case models.RoleAdmin:
		return team.ManagedBy(callerID)
	}
	return false
}
