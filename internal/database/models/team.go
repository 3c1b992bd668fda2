package models

import "github.com/google/uuid"

type Team struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string    `gorm:"not null" json:"name"`
	// Nil once the creator has been removed; team history outlives its creator.
	CreatedBy *uuid.UUID `gorm:"type:uuid;index" json:"created_by"`
	// Nil means unmanaged. When set it references an admin of the same organization.
	ManagerID *uuid.UUID `gorm:"type:uuid;index" json:"manager_id"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Creator      *User         `gorm:"foreignKey:CreatedBy" json:"-"`
	Manager      *User         `gorm:"foreignKey:ManagerID" json:"-"`
}

func (Team) TableName() string {
	return "teams"
}

// ManagedBy reports whether userID manages the team.
func (t *Team) ManagedBy(userID uuid.UUID) bool {
	return t.ManagerID != nil && *t.ManagerID == userID
}
