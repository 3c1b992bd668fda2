package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/database"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/identity"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every fixture identity.
const TestPassword = "testpassword123"

var (
	hashOnce     sync.Once
	passwordHash string
)

func testPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		hash, err := identity.HashPassword(TestPassword)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		passwordHash = hash
	})
	return passwordHash
}

// SetupTestDB creates a private in-memory SQLite database with foreign keys
// enforced, all tables migrated and the default tiers seeded. A single
// connection is used, so code under test must not open a second query while
// a transaction is in flight.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := database.SeedTiers(context.Background(), db); err != nil {
		t.Fatalf("failed to seed tiers: %v", err)
	}

	return db
}

// TestLogger discards output.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestTier creates a tier with the given limits.
func CreateTestTier(t *testing.T, db *gorm.DB, maxMembers, maxTeams int) *models.Tier {
	t.Helper()

	tier := &models.Tier{
		Name:       "tier-" + uuid.NewString()[:8],
		MaxMembers: maxMembers,
		MaxTeams:   maxTeams,
	}
	if err := db.Create(tier).Error; err != nil {
		t.Fatalf("failed to create test tier: %v", err)
	}
	return tier
}

// CreateTestOrg creates an organization on tier, or on an unlimited tier
// when tier is nil.
func CreateTestOrg(t *testing.T, db *gorm.DB, tier *models.Tier) *models.Organization {
	t.Helper()

	if tier == nil {
		tier = CreateTestTier(t, db, models.Unlimited, models.Unlimited)
	}
	org := &models.Organization{
		Name:    "Test Organization",
		TierID:  tier.ID,
		Palette: "{}",
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	org.Tier = tier
	return org
}

// CreateTestUser creates a user and its identity with a generated email.
func CreateTestUser(t *testing.T, db *gorm.DB, org *models.Organization, role models.Role, teamID *uuid.UUID) *models.User {
	t.Helper()
	email := string(role) + "-" + uuid.NewString()[:8] + "@example.com"
	return CreateTestUserWithEmail(t, db, org, role, teamID, email)
}

// CreateTestUserWithEmail creates a user whose identity has email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, org *models.Organization, role models.Role, teamID *uuid.UUID, email string) *models.User {
	t.Helper()

	ident := &models.Identity{
		Email:        strings.ToLower(email),
		PasswordHash: testPasswordHash(t),
	}
	if err := db.Create(ident).Error; err != nil {
		t.Fatalf("failed to create test identity: %v", err)
	}

	orgID := org.ID
	user := &models.User{
		Base:           models.Base{ID: ident.ID},
		OrganizationID: &orgID,
		TeamID:         teamID,
		Role:           role,
		DisplayName:    "Test " + string(role),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestTeam creates a team managed by manager (may be nil).
func CreateTestTeam(t *testing.T, db *gorm.DB, org *models.Organization, creator, manager *models.User) *models.Team {
	t.Helper()

	team := &models.Team{
		OrganizationID: org.ID,
		Name:           "team-" + uuid.NewString()[:8],
	}
	if creator != nil {
		team.CreatedBy = &creator.ID
	}
	if manager != nil {
		team.ManagerID = &manager.ID
	}
	if err := db.Create(team).Error; err != nil {
		t.Fatalf("failed to create test team: %v", err)
	}
	return team
}

// CreateTestInvite creates a pending invite.
func CreateTestInvite(t *testing.T, db *gorm.DB, org *models.Organization, email string, role models.Role, teamID *uuid.UUID, inviter *models.User) *models.Invite {
	t.Helper()

	invite := &models.Invite{
		Email:          strings.ToLower(email),
		OrganizationID: org.ID,
		TeamID:         teamID,
		Role:           role,
	}
	if inviter != nil {
		invite.InvitedBy = &inviter.ID
	}
	if err := db.Create(invite).Error; err != nil {
		t.Fatalf("failed to create test invite: %v", err)
	}
	return invite
}

// CreateTestActivity appends an activity log row authored by actor.
func CreateTestActivity(t *testing.T, db *gorm.DB, actor *models.User, action models.ActionType) *models.ActivityLog {
	t.Helper()

	entry := &models.ActivityLog{
		ActorID:        actor.ID,
		OrganizationID: actor.OrgID(),
		ActionType:     action,
		TargetType:     models.TargetUser,
		TargetID:       actor.ID,
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("failed to create test activity: %v", err)
	}
	return entry
}

// ReloadUser fetches the current row for user, or nil when it is gone.
func ReloadUser(t *testing.T, db *gorm.DB, id uuid.UUID) *models.User {
	t.Helper()

	var user models.User
	err := db.First(&user, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	return &user
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *identity.JWTService {
	return identity.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, db *gorm.DB, jwtService *identity.JWTService, user *models.User) string {
	t.Helper()

	var ident models.Identity
	if err := db.First(&ident, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed to load identity: %v", err)
	}
	token, err := jwtService.GenerateToken(ident.ID, ident.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds an organization with an owner, an admin managing one team
// and one member of that team.
type TestSetup struct {
	DB         *gorm.DB
	JWTService *identity.JWTService
	Org        *models.Organization
	Owner      *models.User
	Admin      *models.User
	Member     *models.User
	Team       *models.Team
	OwnerToken string
}

// NewTestContext creates a complete test setup on an unlimited tier.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()
	return NewTestContextWithTier(t, nil)
}

func NewTestContextWithTier(t *testing.T, tier *models.Tier) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	if tier != nil && tier.ID == uuid.Nil {
		if err := db.Create(tier).Error; err != nil {
			t.Fatalf("failed to create tier: %v", err)
		}
	}
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db, tier)
	owner := CreateTestUser(t, db, org, models.RoleOwner, nil)
	admin := CreateTestUser(t, db, org, models.RoleAdmin, nil)
	team := CreateTestTeam(t, db, org, owner, admin)
	member := CreateTestUser(t, db, org, models.RoleMember, &team.ID)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Org:        org,
		Owner:      owner,
		Admin:      admin,
		Member:     member,
		Team:       team,
		OwnerToken: GenerateTestToken(t, db, jwtService, owner),
	}
}
