package models

import "gorm.io/datatypes"

// Identity is a credential record owned by the local identity provider. It is
// deliberately not linked to User by a foreign key: the provider is treated
// as an external system.
type Identity struct {
	Base
	Email        string            `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string            `gorm:"not null" json:"-"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
}

func (Identity) TableName() string {
	return "identities"
}
