package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionType values are persisted; renaming one requires migrating history.
type ActionType string

const (
	ActionUserInvited         ActionType = "user_invited"
	ActionUserDeleted         ActionType = "user_deleted"
	ActionTeamCreated         ActionType = "team_created"
	ActionTeamUpdated         ActionType = "team_updated"
	ActionTeamDeleted         ActionType = "team_deleted"
	ActionMemberMoved         ActionType = "member_moved"
	ActionRoleChanged         ActionType = "role_changed"
	ActionOrganizationCreated ActionType = "organization_created"
	ActionOrganizationUpdated ActionType = "organization_updated"
)

const (
	TargetUser         = "user"
	TargetTeam         = "team"
	TargetInvite       = "invite"
	TargetOrganization = "organization"
)

// ActivityLog is append-only. Rows are only ever deleted when their actor is
// removed from the organization.
type ActivityLog struct {
	ID             uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	ActorID        uuid.UUID         `gorm:"type:uuid;index;not null" json:"actor_id"`
	OrganizationID uuid.UUID         `gorm:"type:uuid;index;not null" json:"organization_id"`
	ActionType     ActionType        `gorm:"not null;index" json:"action_type"`
	TargetType     string            `gorm:"not null" json:"target_type"`
	TargetID       uuid.UUID         `gorm:"type:uuid" json:"target_id"` // may dangle after deletes
	Details        datatypes.JSONMap `json:"details"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`

	// Relationships
	Actor        *User         `gorm:"foreignKey:ActorID" json:"-"`
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
