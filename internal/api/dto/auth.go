package dto

import (
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/validation"
)

type SignupRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	DisplayName      string `json:"display_name"`
	OrganizationName string `json:"organization_name"`
}

func (r *SignupRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(validation.NormalizeEmail(r.Email)) {
		errors["email"] = "Invalid email format"
	}
	if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if msg := validation.ValidateName("Display name", r.DisplayName); msg != "" {
		errors["display_name"] = msg
	}
	if msg := validation.ValidateName("Organization name", r.OrganizationName); msg != "" {
		errors["organization_name"] = msg
	}

	return errors
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type AuthResponse struct {
	Token        string               `json:"token"`
	User         *UserDTO             `json:"user"`
	Organization *models.Organization `json:"organization,omitempty"`
}

type UserDTO struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
	TeamID         string `json:"team_id,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
}

func NewUserDTO(user *models.User, email string) *UserDTO {
	d := &UserDTO{
		ID:             user.ID.String(),
		Email:          email,
		DisplayName:    user.DisplayName,
		Role:           string(user.Role),
		OrganizationID: user.OrgID().String(),
		AvatarURL:      user.AvatarURL,
	}
	if user.TeamID != nil {
		d.TeamID = user.TeamID.String()
	}
	return d
}
