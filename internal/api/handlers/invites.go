package handlers

import (
	"net/http"

	"github.com/hugh/go-roster/internal/api/dto"
	"github.com/hugh/go-roster/internal/api/middleware"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/invites"
	"github.com/hugh/go-roster/internal/validation"
)

type InviteHandler struct {
	service    *invites.Service
	identities *identity.Service
	cookies    SessionCookies
}

func NewInviteHandler(service *invites.Service, identities *identity.Service, cookies SessionCookies) *InviteHandler {
	return &InviteHandler{service: service, identities: identities, cookies: cookies}
}

func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPending(r.Context(), middleware.GetIdentityID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateInviteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	invite, err := h.service.Create(r.Context(), middleware.GetIdentityID(r.Context()), invites.CreateInput{
		Email:  req.Email,
		Role:   models.Role(req.Role),
		TeamID: req.ParsedTeamID(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

func (h *InviteHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.BatchInviteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.service.CreateBatch(r.Context(), middleware.GetIdentityID(r.Context()), req.Emails, models.Role(req.Role), req.ParsedTeamID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *InviteHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Resend(r.Context(), middleware.GetIdentityID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Invite resent"})
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Revoke(r.Context(), middleware.GetIdentityID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Invite revoked"})
}

// Validate lets an invitee check an invite before signing up. Public.
func (h *InviteHandler) Validate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invite, err := h.service.Validate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	orgName := ""
	if invite.Organization != nil {
		orgName = invite.Organization.Name
	}
	writeJSON(w, http.StatusOK, dto.NewInvitePreview(invite, orgName))
}

// Accept signs the invitee up and starts a session. Public.
func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.AcceptInviteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.AcceptWithSignup(r.Context(), id, req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	email := validation.NormalizeEmail(req.Email)
	session, err := h.identities.Issue(&identity.Identity{ID: user.ID, Email: email})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookies.set(w, session.Token)
	writeJSON(w, http.StatusCreated, dto.AuthResponse{
		Token: session.Token,
		User:  dto.NewUserDTO(user, email),
	})
}
