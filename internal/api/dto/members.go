package dto

import (
	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/database/models"
)

type ChangeRoleRequest struct {
	Role   string  `json:"role"`
	TeamID *string `json:"team_id,omitempty"`

	teamID *uuid.UUID
}

func (r *ChangeRoleRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !models.Role(r.Role).Valid() {
		errors["role"] = "Role must be owner, admin or member"
	}
	r.teamID = parseOptionalID(r.TeamID, "team_id", errors)

	return errors
}

func (r *ChangeRoleRequest) ParsedTeamID() *uuid.UUID {
	return r.teamID
}

type MoveMemberRequest struct {
	TeamID string `json:"team_id"`

	teamID uuid.UUID
}

func (r *MoveMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)

	id, err := uuid.Parse(r.TeamID)
	if err != nil {
		errors["team_id"] = "Must be a valid id"
	}
	r.teamID = id

	return errors
}

func (r *MoveMemberRequest) ParsedTeamID() uuid.UUID {
	return r.teamID
}
