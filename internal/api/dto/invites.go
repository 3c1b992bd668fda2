package dto

import (
	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/validation"
)

type CreateInviteRequest struct {
	Email  string  `json:"email"`
	Role   string  `json:"role"`
	TeamID *string `json:"team_id,omitempty"`

	teamID *uuid.UUID
}

func (r *CreateInviteRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !validation.IsValidEmail(validation.NormalizeEmail(r.Email)) {
		errors["email"] = "Invalid email format"
	}
	if !models.Role(r.Role).Invitable() {
		errors["role"] = "Role must be admin or member"
	}
	r.teamID = parseOptionalID(r.TeamID, "team_id", errors)

	return errors
}

func (r *CreateInviteRequest) ParsedTeamID() *uuid.UUID {
	return r.teamID
}

type BatchInviteRequest struct {
	Emails []string `json:"emails"`
	Role   string   `json:"role"`
	TeamID *string  `json:"team_id,omitempty"`

	teamID *uuid.UUID
}

// Validate checks the request shape only; per-address checks happen in the
// service so that one bad address rejects the whole batch with its reason.
func (r *BatchInviteRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if len(r.Emails) == 0 {
		errors["emails"] = "At least one email is required"
	}
	if !models.Role(r.Role).Invitable() {
		errors["role"] = "Role must be admin or member"
	}
	r.teamID = parseOptionalID(r.TeamID, "team_id", errors)

	return errors
}

func (r *BatchInviteRequest) ParsedTeamID() *uuid.UUID {
	return r.teamID
}

type AcceptInviteRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (r *AcceptInviteRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !validation.IsValidEmail(validation.NormalizeEmail(r.Email)) {
		errors["email"] = "Invalid email format"
	}
	if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if msg := validation.ValidateName("Display name", r.DisplayName); msg != "" {
		errors["display_name"] = msg
	}

	return errors
}

// InvitePreview is what an unauthenticated invitee may see.
type InvitePreview struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Role             string  `json:"role"`
	OrganizationID   string  `json:"organization_id"`
	OrganizationName string  `json:"organization_name"`
	TeamID           *string `json:"team_id,omitempty"`
}

func NewInvitePreview(invite *models.Invite, orgName string) InvitePreview {
	p := InvitePreview{
		ID:               invite.ID.String(),
		Email:            invite.Email,
		Role:             string(invite.Role),
		OrganizationID:   invite.OrganizationID.String(),
		OrganizationName: orgName,
	}
	if invite.TeamID != nil {
		id := invite.TeamID.String()
		p.TeamID = &id
	}
	return p
}
