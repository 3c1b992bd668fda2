package dto

import (
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/validation"
)

// ErrorResponse is the body of every failed request. Quota carries the
// usage snapshot of a quota rejection; Details carries field errors or other
// structured context.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details any    `json:"details,omitempty"`
	Quota   any    `json:"quota,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// ChangeResponse is returned by role and team changes, success or not.
type ChangeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

func NewPaginatedResponse(data interface{}, total int64, p PaginationParams) PaginatedResponse {
	pages := int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: pages,
	}
}

type PaginationParams struct {
	Page    int
	PerPage int
}

func (p *PaginationParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
}

func (p *PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// parseOptionalID parses an optional uuid field. Empty and nil both mean
// "not set".
func parseOptionalID(raw *string, field string, errors map[string]string) *uuid.UUID {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if !validation.IsValidUUID(trimmed) {
		errors[field] = "Must be a valid id"
		return nil
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		errors[field] = "Must be a valid id"
		return nil
	}
	return &id
}
