package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/api/dto"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/quota"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err through the error taxonomy. Unexpected errors are
// logged here and never shown to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnexpected {
		slog.Default().Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}

	resp := dto.ErrorResponse{Error: apperr.Message(err), Kind: string(kind)}
	switch detail := apperr.DetailOf(err).(type) {
	case nil:
	case quota.Result:
		resp.Quota = detail
	default:
		resp.Details = detail
	}
	writeJSON(w, apperr.HTTPStatus(kind), resp)
}

// writeChange renders role and team changes in the {success, message} shape.
func writeChange(w http.ResponseWriter, r *http.Request, message string, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, dto.ChangeResponse{Success: true, Message: message})
		return
	}
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnexpected {
		writeError(w, r, err)
		return
	}
	writeJSON(w, apperr.HTTPStatus(kind), dto.ChangeResponse{
		Success: false,
		Message: apperr.Message(err),
		Kind:    string(kind),
	})
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Validation failed",
		Kind:    string(apperr.KindValidation),
		Details: fields,
	})
}

type validator interface {
	Validate() map[string]string
}

// decodeAndValidate reads a JSON body into v and runs its field checks. It
// writes the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v validator) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "Request body too large", Kind: string(apperr.KindValidation)})
			return false
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body", Kind: string(apperr.KindValidation)})
		return false
	}
	if fields := v.Validate(); len(fields) > 0 {
		writeValidation(w, fields)
		return false
	}
	return true
}

// pathID parses the {id} URL parameter. Malformed ids are reported as not
// found so callers cannot probe id formats.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.NotFound("Not found"))
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) dto.PaginationParams {
	p := dto.PaginationParams{}
	p.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	p.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	p.Normalize()
	return p
}
