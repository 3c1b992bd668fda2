package roles_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestValidate(t *testing.T) {
	teamA := uuid.New()
	teamB := uuid.New()

	tests := []struct {
		name     string
		req      roles.Request
		wantKind apperr.Kind
		wantPlan roles.Plan
	}{
		{
			name: "owner promotes member and team is dropped",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleMember,
				CurrentTeamID: ptr(teamA), NewRole: models.RoleAdmin,
			},
			wantPlan: roles.Plan{Kind: roles.ChangePromotion, Role: models.RoleAdmin},
		},
		{
			name: "promotion ignores a supplied team",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleMember,
				CurrentTeamID: ptr(teamA), NewRole: models.RoleAdmin, NewTeamID: ptr(teamB),
			},
			wantPlan: roles.Plan{Kind: roles.ChangePromotion, Role: models.RoleAdmin},
		},
		{
			name: "demotion without team",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleAdmin, NewRole: models.RoleMember,
			},
			wantKind: apperr.KindValidation,
		},
		{
			name: "demotion with team",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleAdmin,
				NewRole: models.RoleMember, NewTeamID: ptr(teamB),
			},
			wantPlan: roles.Plan{
				Kind: roles.ChangeDemotion, Role: models.RoleMember,
				TeamID: ptr(teamB), ReleaseManagedTeams: true,
			},
		},
		{
			name: "team move",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleMember,
				CurrentTeamID: ptr(teamA), NewRole: models.RoleMember, NewTeamID: ptr(teamB),
			},
			wantPlan: roles.Plan{Kind: roles.ChangeTeamMove, Role: models.RoleMember, TeamID: ptr(teamB)},
		},
		{
			name: "team move to same team",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleMember,
				CurrentTeamID: ptr(teamA), NewRole: models.RoleMember, NewTeamID: ptr(teamA),
			},
			wantKind: apperr.KindNoOp,
		},
		{
			name: "team move without team",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleMember,
				CurrentTeamID: ptr(teamA), NewRole: models.RoleMember,
			},
			wantKind: apperr.KindValidation,
		},
		{
			name: "admin to admin",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleAdmin, NewRole: models.RoleAdmin,
			},
			wantKind: apperr.KindNoOp,
		},
		{
			name: "owner role is immutable",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleOwner, NewRole: models.RoleAdmin,
			},
			wantKind: apperr.KindForbidden,
		},
		{
			name: "nobody becomes owner",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleAdmin, NewRole: models.RoleOwner,
			},
			wantKind: apperr.KindForbidden,
		},
		{
			name: "admin caller cannot change roles",
			req: roles.Request{
				CallerRole: models.RoleAdmin, CurrentRole: models.RoleMember,
				CurrentTeamID: ptr(teamA), NewRole: models.RoleAdmin,
			},
			wantKind: apperr.KindForbidden,
		},
		{
			name: "member caller cannot move members",
			req: roles.Request{
				CallerRole: models.RoleMember, CurrentRole: models.RoleMember,
				CurrentTeamID: ptr(teamA), NewRole: models.RoleMember, NewTeamID: ptr(teamB),
			},
			wantKind: apperr.KindForbidden,
		},
		{
			name: "unknown role",
			req: roles.Request{
				CallerRole: models.RoleOwner, CurrentRole: models.RoleMember, NewRole: "superuser",
			},
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := roles.Validate(tt.req)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlan.Kind, plan.Kind)
			assert.Equal(t, tt.wantPlan.Role, plan.Role)
			assert.Equal(t, tt.wantPlan.TeamID, plan.TeamID)
			assert.Equal(t, tt.wantPlan.ReleaseManagedTeams, plan.ReleaseManagedTeams)
			assert.NotEmpty(t, plan.Message)
		})
	}
}

func TestAuthorizeRemoval(t *testing.T) {
	caller := uuid.New()
	target := uuid.New()

	tests := []struct {
		name     string
		removal  roles.Removal
		wantKind apperr.Kind
	}{
		{"owner removes member", roles.Removal{caller, models.RoleOwner, target, models.RoleMember, false}, ""},
		{"owner removes admin", roles.Removal{caller, models.RoleOwner, target, models.RoleAdmin, false}, ""},
		{"admin removes member of managed team", roles.Removal{caller, models.RoleAdmin, target, models.RoleMember, true}, ""},
		{"admin removes member of other team", roles.Removal{caller, models.RoleAdmin, target, models.RoleMember, false}, apperr.KindForbidden},
		{"admin removes admin", roles.Removal{caller, models.RoleAdmin, target, models.RoleAdmin, false}, apperr.KindForbidden},
		{"owner cannot be removed", roles.Removal{caller, models.RoleAdmin, target, models.RoleOwner, false}, apperr.KindForbidden},
		{"member removes member", roles.Removal{caller, models.RoleMember, target, models.RoleMember, true}, apperr.KindForbidden},
		{"self removal", roles.Removal{caller, models.RoleOwner, caller, models.RoleOwner, false}, apperr.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := roles.AuthorizeRemoval(tt.removal)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestAuthorizeInvite(t *testing.T) {
	tests := []struct {
		name     string
		inviter  models.Role
		role     models.Role
		manages  bool
		wantKind apperr.Kind
	}{
		{"owner invites admin", models.RoleOwner, models.RoleAdmin, false, ""},
		{"owner invites member", models.RoleOwner, models.RoleMember, false, ""},
		{"admin invites member to managed team", models.RoleAdmin, models.RoleMember, true, ""},
		{"admin invites member to other team", models.RoleAdmin, models.RoleMember, false, apperr.KindForbidden},
		{"admin invites admin", models.RoleAdmin, models.RoleAdmin, true, apperr.KindForbidden},
		{"member invites", models.RoleMember, models.RoleMember, true, apperr.KindForbidden},
		{"owner role not invitable", models.RoleOwner, models.RoleOwner, false, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := roles.AuthorizeInvite(tt.inviter, tt.role, tt.manages)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestInviteShape(t *testing.T) {
	team := uuid.New()

	assert.NoError(t, roles.InviteShape(models.RoleAdmin, nil))
	assert.NoError(t, roles.InviteShape(models.RoleMember, &team))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(roles.InviteShape(models.RoleAdmin, &team)))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(roles.InviteShape(models.RoleMember, nil)))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(roles.InviteShape(models.RoleOwner, nil)))
}

func TestCanManageTeam(t *testing.T) {
	admin := uuid.New()
	team := &models.Team{ManagerID: &admin}

	assert.True(t, roles.CanManageTeam(models.RoleOwner, uuid.New(), team))
	assert.True(t, roles.CanManageTeam(models.RoleAdmin, admin, team))
	assert.False(t, roles.CanManageTeam(models.RoleAdmin, uuid.New(), team))
	assert.False(t, roles.CanManageTeam(models.RoleMember, admin, team))
	assert.False(t, roles.CanManageTeam(models.RoleAdmin, admin, &models.Team{}))
}
