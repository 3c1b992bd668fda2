package models

import "github.com/google/uuid"

// User is an organization member. Its ID is the identity provider's id for
// the same person; email and password live with the identity provider.
type User struct {
	Base
	// Nil only between the two phases of owner signup.
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	// Always nil for admins and the owner; set for members.
	TeamID      *uuid.UUID `gorm:"type:uuid;index" json:"team_id"`
	Role        Role       `gorm:"not null;index" json:"role"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) OrgID() uuid.UUID {
	if u.OrganizationID == nil {
		return uuid.Nil
	}
	return *u.OrganizationID
}

// InTeam reports whether the user is currently assigned to teamID.
func (u *User) InTeam(teamID uuid.UUID) bool {
	return u.TeamID != nil && *u.TeamID == teamID
}
