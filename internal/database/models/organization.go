package models

import "github.com/google/uuid"

// Unlimited marks a tier limit that is not enforced.
const Unlimited = -1

// Tier is immutable quota reference data.
type Tier struct {
	Base
	Name       string `gorm:"uniqueIndex;not null" json:"name"`
	MaxMembers int    `gorm:"not null" json:"max_members"`
	MaxTeams   int    `gorm:"not null" json:"max_teams"`
}

func (Tier) TableName() string {
	return "tiers"
}

// Default tiers seeded on first start.
var DefaultTiers = []Tier{
	{Name: "free", MaxMembers: 5, MaxTeams: 2},
	{Name: "pro", MaxMembers: 25, MaxTeams: 10},
	{Name: "enterprise", MaxMembers: Unlimited, MaxTeams: Unlimited},
}

const DefaultTierName = "free"

type Organization struct {
	Base
	Name    string    `gorm:"not null" json:"name"`
	TierID  uuid.UUID `gorm:"type:uuid;index;not null" json:"tier_id"`
	Palette string    `gorm:"type:text;default:'{}'" json:"palette"` // cosmetic, JSON object

	// Relationships
	Tier *Tier `gorm:"foreignKey:TierID" json:"tier,omitempty"`
}

func (Organization) TableName() string {
	return "organizations"
}
