package dto

import (
	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/validation"
)

type CreateTeamRequest struct {
	Name      string  `json:"name"`
	ManagerID *string `json:"manager_id,omitempty"`

	managerID *uuid.UUID
}

func (r *CreateTeamRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if msg := validation.ValidateName("Name", r.Name); msg != "" {
		errors["name"] = msg
	}
	r.managerID = parseOptionalID(r.ManagerID, "manager_id", errors)

	return errors
}

func (r *CreateTeamRequest) ParsedManagerID() *uuid.UUID {
	return r.managerID
}

type UpdateTeamRequest struct {
	Name         *string `json:"name,omitempty"`
	ManagerID    *string `json:"manager_id,omitempty"`
	ClearManager bool    `json:"clear_manager,omitempty"`

	managerID *uuid.UUID
}

func (r *UpdateTeamRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name != nil {
		if msg := validation.ValidateName("Name", *r.Name); msg != "" {
			errors["name"] = msg
		}
	}
	r.managerID = parseOptionalID(r.ManagerID, "manager_id", errors)
	if r.ClearManager && r.managerID != nil {
		errors["manager_id"] = "Cannot set and clear the manager at once"
	}

	return errors
}

func (r *UpdateTeamRequest) ParsedManagerID() *uuid.UUID {
	return r.managerID
}
