package handlers

import (
	"net/http"

	"github.com/hugh/go-roster/internal/api/dto"
	"github.com/hugh/go-roster/internal/api/middleware"
	"github.com/hugh/go-roster/internal/organizations"
	"github.com/hugh/go-roster/internal/quota"
)

type OrganizationHandler struct {
	service *organizations.Service
}

func NewOrganizationHandler(service *organizations.Service) *OrganizationHandler {
	return &OrganizationHandler{service: service}
}

func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.Get(r.Context(), middleware.GetIdentityID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOrganizationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	org, err := h.service.Update(r.Context(), middleware.GetIdentityID(r.Context()), organizations.UpdateInput{
		Name:    req.Name,
		Palette: req.Palette,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// Quota answers for one kind when ?kind= is given, otherwise for all kinds.
func (h *OrganizationHandler) Quota(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetIdentityID(r.Context())

	if kind := r.URL.Query().Get("kind"); kind != "" {
		res, err := h.service.Quota(r.Context(), callerID, quota.Kind(kind))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	usage, err := h.service.Usage(r.Context(), callerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *OrganizationHandler) Activity(w http.ResponseWriter, r *http.Request) {
	p := pagination(r)
	entries, total, err := h.service.Activity(r.Context(), middleware.GetIdentityID(r.Context()), p.Page, p.PerPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPaginatedResponse(entries, total, p))
}
