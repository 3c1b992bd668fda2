package handlers

import (
	"net/http"

	"github.com/hugh/go-roster/internal/api/dto"
	"github.com/hugh/go-roster/internal/api/middleware"
	"github.com/hugh/go-roster/internal/avatars"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/membership"
)

type MemberHandler struct {
	members *membership.Service
	avatars *avatars.Service
}

func NewMemberHandler(members *membership.Service, avatarService *avatars.Service) *MemberHandler {
	return &MemberHandler{members: members, avatars: avatarService}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context(), middleware.GetIdentityID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	member, err := h.members.Get(r.Context(), middleware.GetIdentityID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.members.RemoveMember(r.Context(), middleware.GetIdentityID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member removed"})
}

func (h *MemberHandler) MoveTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.MoveMemberRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.members.MoveMember(r.Context(), middleware.GetIdentityID(r.Context()), id, req.ParsedTeamID())
	writeChange(w, r, res.Message, err)
}

func (h *MemberHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.ChangeRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.members.ChangeRole(r.Context(), middleware.GetIdentityID(r.Context()), id, models.Role(req.Role), req.ParsedTeamID())
	writeChange(w, r, res.Message, err)
}

// UploadAvatar takes the raw image as the request body.
func (h *MemberHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, avatars.MaxSize+1)

	user, err := h.avatars.Upload(r.Context(), middleware.GetIdentityID(r.Context()), id, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
