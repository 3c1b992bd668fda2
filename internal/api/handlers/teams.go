package handlers

import (
	"net/http"

	"github.com/hugh/go-roster/internal/api/dto"
	"github.com/hugh/go-roster/internal/api/middleware"
	"github.com/hugh/go-roster/internal/teams"
)

type TeamHandler struct {
	service *teams.Service
}

func NewTeamHandler(service *teams.Service) *TeamHandler {
	return &TeamHandler{service: service}
}

func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), middleware.GetIdentityID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTeamRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	team, err := h.service.Create(r.Context(), middleware.GetIdentityID(r.Context()), teams.CreateInput{
		Name:      req.Name,
		ManagerID: req.ParsedManagerID(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	team, err := h.service.Get(r.Context(), middleware.GetIdentityID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpdateTeamRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	team, err := h.service.Update(r.Context(), middleware.GetIdentityID(r.Context()), id, teams.UpdateInput{
		Name:         req.Name,
		ManagerID:    req.ParsedManagerID(),
		ClearManager: req.ClearManager,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), middleware.GetIdentityID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Team deleted"})
}
