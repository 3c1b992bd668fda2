package models

import (
	"time"

	"github.com/google/uuid"
)

// Invite is a pending offer of membership. Accepted invites are immutable
// history; revoked invites are deleted. TeamID is nil for admin invites and is
// not a foreign key: accepted invites keep the id of a team that may since
// have been deleted.
type Invite struct {
	Base
	Email          string     `gorm:"not null;index:idx_invites_org_email" json:"email"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_invites_org_email" json:"organization_id"`
	TeamID         *uuid.UUID `gorm:"type:uuid;index" json:"team_id"`
	Role           Role       `gorm:"not null" json:"role"`
	InvitedBy      *uuid.UUID `gorm:"type:uuid;index" json:"invited_by"`
	Accepted       bool       `gorm:"not null;default:false;index" json:"accepted"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Inviter      *User         `gorm:"foreignKey:InvitedBy" json:"-"`
}

func (Invite) TableName() string {
	return "invites"
}
