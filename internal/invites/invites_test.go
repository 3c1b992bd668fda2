package invites_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/audit"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/invites"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const password = "Str0ng!Passw0rd"

type fixture struct {
	*testutil.TestSetup
	svc      *invites.Service
	sender   *testutil.RecordingSender
	provider *testutil.FlakyProvider
}

func newFixture(t *testing.T, tier *models.Tier) *fixture {
	t.Helper()
	tc := testutil.NewTestContextWithTier(t, tier)
	st := store.New(tc.DB)
	logger := testutil.TestLogger()
	sender := &testutil.RecordingSender{}
	provider := &testutil.FlakyProvider{Provider: identity.NewLocalProvider(tc.DB)}
	svc := invites.NewService(st, quota.NewEvaluator(st, logger), nil, provider, sender, audit.NewRecorder(st, logger), logger)
	return &fixture{TestSetup: tc, svc: svc, sender: sender, provider: provider}
}

func (f *fixture) pendingCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.DB.Model(&models.Invite{}).Where("accepted = ?", false).Count(&n).Error)
	return n
}

func TestCreate_Authorization(t *testing.T) {
	tests := []struct {
		name     string
		inviter  func(f *fixture) *models.User
		role     models.Role
		team     func(t *testing.T, f *fixture) *uuid.UUID
		wantKind apperr.Kind
	}{
		{
			name:    "owner invites member into any team",
			inviter: func(f *fixture) *models.User { return f.Owner },
			role:    models.RoleMember,
			team:    func(t *testing.T, f *fixture) *uuid.UUID { return &f.Team.ID },
		},
		{
			name:    "owner invites admin",
			inviter: func(f *fixture) *models.User { return f.Owner },
			role:    models.RoleAdmin,
			team:    func(t *testing.T, f *fixture) *uuid.UUID { return nil },
		},
		{
			name:    "admin invites member into managed team",
			inviter: func(f *fixture) *models.User { return f.Admin },
			role:    models.RoleMember,
			team:    func(t *testing.T, f *fixture) *uuid.UUID { return &f.Team.ID },
		},
		{
			name:    "admin cannot invite into unmanaged team",
			inviter: func(f *fixture) *models.User { return f.Admin },
			role:    models.RoleMember,
			team: func(t *testing.T, f *fixture) *uuid.UUID {
				other := testutil.CreateTestTeam(t, f.DB, f.Org, f.Owner, nil)
				return &other.ID
			},
			wantKind: apperr.KindForbidden,
		},
		{
			name:     "admin cannot invite admins",
			inviter:  func(f *fixture) *models.User { return f.Admin },
			role:     models.RoleAdmin,
			team:     func(t *testing.T, f *fixture) *uuid.UUID { return nil },
			wantKind: apperr.KindForbidden,
		},
		{
			name:     "member cannot invite",
			inviter:  func(f *fixture) *models.User { return f.Member },
			role:     models.RoleMember,
			team:     func(t *testing.T, f *fixture) *uuid.UUID { return &f.Team.ID },
			wantKind: apperr.KindForbidden,
		},
		{
			name:     "member invite needs a team",
			inviter:  func(f *fixture) *models.User { return f.Owner },
			role:     models.RoleMember,
			team:     func(t *testing.T, f *fixture) *uuid.UUID { return nil },
			wantKind: apperr.KindValidation,
		},
		{
			name:     "owner role is not invitable",
			inviter:  func(f *fixture) *models.User { return f.Owner },
			role:     models.RoleOwner,
			team:     func(t *testing.T, f *fixture) *uuid.UUID { return nil },
			wantKind: apperr.KindValidation,
		},
		{
			name:    "team of another organization",
			inviter: func(f *fixture) *models.User { return f.Owner },
			role:    models.RoleMember,
			team: func(t *testing.T, f *fixture) *uuid.UUID {
				otherOrg := testutil.CreateTestOrg(t, f.DB, nil)
				other := testutil.CreateTestTeam(t, f.DB, otherOrg, nil, nil)
				return &other.ID
			},
			wantKind: apperr.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			invite, err := f.svc.Create(testutil.TestContext(t), tt.inviter(f).ID, invites.CreateInput{
				Email:  "New.Person@Example.com",
				Role:   tt.role,
				TeamID: tt.team(t, f),
			})

			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				assert.Zero(t, f.pendingCount(t))
				assert.Zero(t, f.sender.InviteCount())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "new.person@example.com", invite.Email)
			assert.Equal(t, 1, f.sender.InviteCount())
			assert.Equal(t, f.Org.Name, f.sender.Invites[0].OrganizationName)

			var entry models.ActivityLog
			require.NoError(t, f.DB.Where("action_type = ?", models.ActionUserInvited).First(&entry).Error)
			assert.Equal(t, invite.ID, entry.TargetID)
		})
	}
}

func TestCreate_Uniqueness(t *testing.T) {
	t.Run("pending invite for the same email", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		in := invites.CreateInput{Email: "dup@example.com", Role: models.RoleMember, TeamID: &f.Team.ID}

		_, err := f.svc.Create(ctx, f.Owner.ID, in)
		require.NoError(t, err)
		in.Email = "DUP@example.com"
		_, err = f.svc.Create(ctx, f.Owner.ID, in)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, int64(1), f.pendingCount(t))
	})

	t.Run("email already belongs to a member", func(t *testing.T) {
		f := newFixture(t, nil)
		testutil.CreateTestUserWithEmail(t, f.DB, f.Org, models.RoleMember, &f.Team.ID, "taken@example.com")

		_, err := f.svc.Create(testutil.TestContext(t), f.Owner.ID, invites.CreateInput{Email: "taken@example.com", Role: models.RoleMember, TeamID: &f.Team.ID})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("member of another organization cannot be invited", func(t *testing.T) {
		f := newFixture(t, nil)
		otherOrg := testutil.CreateTestOrg(t, f.DB, nil)
		testutil.CreateTestUserWithEmail(t, f.DB, otherOrg, models.RoleAdmin, nil, "elsewhere@example.com")

		_, err := f.svc.Create(testutil.TestContext(t), f.Owner.ID, invites.CreateInput{Email: "elsewhere@example.com", Role: models.RoleMember, TeamID: &f.Team.ID})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, "A user with this email already belongs to another organization", apperr.Message(err))
		assert.Zero(t, f.pendingCount(t))

		_, err = f.svc.CreateBatch(testutil.TestContext(t), f.Owner.ID, []string{"Elsewhere@example.com"}, models.RoleMember, &f.Team.ID)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("identity without membership cannot be invited", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		_, err := f.provider.CreateIdentity(ctx, "orphaned@example.com", password, nil)
		require.NoError(t, err)

		_, err = f.svc.Create(ctx, f.Owner.ID, invites.CreateInput{Email: "orphaned@example.com", Role: models.RoleAdmin})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Zero(t, f.pendingCount(t))
	})
}

func TestCreate_Quota(t *testing.T) {
	f := newFixture(t, &models.Tier{Name: "small", MaxMembers: 3, MaxTeams: 5})
	ctx := testutil.TestContext(t)

	_, err := f.svc.Create(ctx, f.Owner.ID, invites.CreateInput{Email: "over@example.com", Role: models.RoleMember, TeamID: &f.Team.ID})
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	res, ok := apperr.DetailOf(err).(quota.Result)
	require.True(t, ok)
	assert.Equal(t, int64(3), res.CurrentUsage.Members)

	_, err = f.svc.Create(ctx, f.Owner.ID, invites.CreateInput{Email: "admin@example.com", Role: models.RoleAdmin})
	assert.NoError(t, err, "admin invites are not gated by the member quota")
}

func TestCreate_PendingInvitesDoNotCountAsMembers(t *testing.T) {
	f := newFixture(t, &models.Tier{Name: "roomy", MaxMembers: 4, MaxTeams: 5})
	ctx := testutil.TestContext(t)

	for _, email := range []string{"p1@example.com", "p2@example.com"} {
		_, err := f.svc.Create(ctx, f.Owner.ID, invites.CreateInput{Email: email, Role: models.RoleMember, TeamID: &f.Team.ID})
		require.NoError(t, err, email)
	}
	assert.Equal(t, int64(2), f.pendingCount(t))
}

func TestCreate_EmailFailureKeepsInvite(t *testing.T) {
	f := newFixture(t, nil)
	f.sender.Err = errors.New("smtp down")

	invite, err := f.svc.Create(testutil.TestContext(t), f.Owner.ID, invites.CreateInput{Email: "x@example.com", Role: models.RoleMember, TeamID: &f.Team.ID})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, invite.ID)
	assert.Equal(t, int64(1), f.pendingCount(t))
}

func TestCreateBatch(t *testing.T) {
	t.Run("all created", func(t *testing.T) {
		f := newFixture(t, nil)
		created, err := f.svc.CreateBatch(testutil.TestContext(t), f.Admin.ID,
			[]string{"a@example.com", "B@example.com", "a@example.com", " "}, models.RoleMember, &f.Team.ID)
		require.NoError(t, err)
		assert.Len(t, created, 2)
		assert.Equal(t, 2, f.sender.InviteCount())
	})

	t.Run("one conflict rejects the batch", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		testutil.CreateTestInvite(t, f.DB, f.Org, "pending@example.com", models.RoleMember, &f.Team.ID, f.Owner)

		_, err := f.svc.CreateBatch(ctx, f.Owner.ID, []string{"fresh@example.com", "pending@example.com"}, models.RoleMember, &f.Team.ID)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		detail, ok := apperr.DetailOf(err).(map[string]string)
		require.True(t, ok)
		assert.Contains(t, detail, "pending@example.com")
		assert.Equal(t, int64(1), f.pendingCount(t))
	})

	t.Run("invalid address rejects the batch", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.CreateBatch(testutil.TestContext(t), f.Owner.ID, []string{"ok@example.com", "nope"}, models.RoleMember, &f.Team.ID)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Zero(t, f.pendingCount(t))
	})

	t.Run("quota applies to the whole batch", func(t *testing.T) {
		f := newFixture(t, &models.Tier{Name: "small", MaxMembers: 4, MaxTeams: 5})
		_, err := f.svc.CreateBatch(testutil.TestContext(t), f.Owner.ID, []string{"a@example.com", "b@example.com"}, models.RoleMember, &f.Team.ID)
		assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
		assert.Zero(t, f.pendingCount(t))
	})
}

func TestAcceptWithSignup(t *testing.T) {
	t.Run("creates the membership", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "joiner@example.com", models.RoleMember, &f.Team.ID, f.Admin)

		user, err := f.svc.AcceptWithSignup(ctx, invite.ID, "Joiner@Example.com", password, "Joiner")
		require.NoError(t, err)
		assert.Equal(t, models.RoleMember, user.Role)
		assert.True(t, user.InTeam(f.Team.ID))
		assert.Equal(t, f.Org.ID, user.OrgID())

		var stored models.Invite
		require.NoError(t, f.DB.First(&stored, "id = ?", invite.ID).Error)
		assert.True(t, stored.Accepted)
		assert.NotNil(t, stored.AcceptedAt)

		_, err = f.svc.Validate(ctx, invite.ID)
		assert.Equal(t, apperr.KindGone, apperr.KindOf(err))
	})

	t.Run("second accept is gone", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "twice@example.com", models.RoleAdmin, nil, f.Owner)

		first, err := f.svc.Accept(ctx, invite.ID, uuid.New(), "First")
		require.NoError(t, err)
		assert.Nil(t, first.TeamID)

		_, err = f.svc.Accept(ctx, invite.ID, uuid.New(), "Second")
		assert.True(t, errors.Is(err, apperr.ErrGone))

		var n int64
		f.DB.Model(&models.User{}).Where("organization_id = ?", f.Org.ID).Count(&n)
		assert.Equal(t, int64(4), n)
	})

	t.Run("concurrent accepts admit one user", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "race@example.com", models.RoleMember, &f.Team.ID, f.Owner)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.Accept(ctx, invite.ID, uuid.New(), "Racer")
			}(i)
		}
		wg.Wait()

		var succeeded, gone int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case apperr.KindOf(err) == apperr.KindGone:
				gone++
			default:
				t.Fatalf("unexpected accept error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, gone)

		var n int64
		f.DB.Model(&models.User{}).Where("team_id = ? AND display_name = ?", f.Team.ID, "Racer").Count(&n)
		assert.Equal(t, int64(1), n)
	})

	t.Run("wrong email is forbidden", func(t *testing.T) {
		f := newFixture(t, nil)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "right@example.com", models.RoleMember, &f.Team.ID, f.Owner)

		_, err := f.svc.AcceptWithSignup(testutil.TestContext(t), invite.ID, "wrong@example.com", password, "Wrong")
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

		var n int64
		f.DB.Model(&models.Identity{}).Where("email = ?", "wrong@example.com").Count(&n)
		assert.Zero(t, n)
	})

	t.Run("deleted team rolls back and removes the identity", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		team := testutil.CreateTestTeam(t, f.DB, f.Org, f.Owner, nil)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "orphan@example.com", models.RoleMember, &team.ID, f.Owner)
		require.NoError(t, f.DB.Delete(team).Error)

		_, err := f.svc.AcceptWithSignup(ctx, invite.ID, "orphan@example.com", password, "Orphan")
		assert.Equal(t, apperr.KindGone, apperr.KindOf(err))
		assert.Len(t, f.provider.Deleted, 1)

		var stored models.Invite
		require.NoError(t, f.DB.First(&stored, "id = ?", invite.ID).Error)
		assert.False(t, stored.Accepted, "transaction rolled back")
	})

	t.Run("unknown invite", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.AcceptWithSignup(testutil.TestContext(t), uuid.New(), "x@example.com", password, "X")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestRevokeAndResend(t *testing.T) {
	t.Run("revoke deletes a pending invite", func(t *testing.T) {
		f := newFixture(t, nil)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "r@example.com", models.RoleMember, &f.Team.ID, f.Owner)

		require.NoError(t, f.svc.Revoke(testutil.TestContext(t), f.Admin.ID, invite.ID))
		assert.Zero(t, f.pendingCount(t))
	})

	t.Run("accepted invites cannot be revoked", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := testutil.TestContext(t)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "a@example.com", models.RoleMember, &f.Team.ID, f.Owner)
		_, err := f.svc.Accept(ctx, invite.ID, uuid.New(), "A")
		require.NoError(t, err)

		err = f.svc.Revoke(ctx, f.Owner.ID, invite.ID)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("member cannot revoke", func(t *testing.T) {
		f := newFixture(t, nil)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "m@example.com", models.RoleMember, &f.Team.ID, f.Owner)

		err := f.svc.Revoke(testutil.TestContext(t), f.Member.ID, invite.ID)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("resend sends again", func(t *testing.T) {
		f := newFixture(t, nil)
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "again@example.com", models.RoleMember, &f.Team.ID, f.Owner)

		require.NoError(t, f.svc.Resend(testutil.TestContext(t), f.Owner.ID, invite.ID))
		require.Equal(t, 1, f.sender.InviteCount())
		assert.Equal(t, f.Team.Name, f.sender.Invites[0].TeamName)
	})

	t.Run("resend reports send failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.sender.Err = errors.New("smtp down")
		invite := testutil.CreateTestInvite(t, f.DB, f.Org, "fail@example.com", models.RoleMember, &f.Team.ID, f.Owner)

		err := f.svc.Resend(testutil.TestContext(t), f.Owner.ID, invite.ID)
		assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
		assert.Equal(t, "The invite email could not be sent; try again later", apperr.Message(err))
		assert.NotContains(t, apperr.Message(err), "smtp")
		assert.Equal(t, int64(1), f.pendingCount(t))
	})
}

func TestListPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testutil.TestContext(t)
	other := testutil.CreateTestTeam(t, f.DB, f.Org, f.Owner, nil)
	testutil.CreateTestInvite(t, f.DB, f.Org, "mine@example.com", models.RoleMember, &f.Team.ID, f.Admin)
	testutil.CreateTestInvite(t, f.DB, f.Org, "theirs@example.com", models.RoleMember, &other.ID, f.Owner)
	testutil.CreateTestInvite(t, f.DB, f.Org, "admin@example.com", models.RoleAdmin, nil, f.Owner)

	all, err := f.svc.ListPending(ctx, f.Owner.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	managed, err := f.svc.ListPending(ctx, f.Admin.ID)
	require.NoError(t, err)
	require.Len(t, managed, 1)
	assert.Equal(t, "mine@example.com", managed[0].Email)

	_, err = f.svc.ListPending(ctx, f.Member.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
