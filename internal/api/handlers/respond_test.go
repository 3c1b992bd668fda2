package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/api/dto"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	denied := quota.Decide(quota.KindTeam, quota.Usage{Teams: 3}, quota.Limits{MaxMembers: 10, MaxTeams: 3}, 1)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{"not found", apperr.NotFound("Team not found"), http.StatusNotFound, "not_found", "Team not found"},
		{"forbidden", apperr.Forbidden("Nope"), http.StatusForbidden, "forbidden", "Nope"},
		{"quota", denied.Error(), http.StatusConflict, "quota_exceeded", denied.Reason},
		{"unavailable", apperr.Unavailable("The invite email could not be sent; try again later"), http.StatusServiceUnavailable, "unavailable", "The invite email could not be sent; try again later"},
		{"unexpected hides cause", errors.New("pq: connection refused"), http.StatusInternalServerError, "unexpected", "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp["kind"])
			assert.Equal(t, tt.wantMsg, resp["error"])
			assert.NotContains(t, rr.Body.String(), "pq:")
		})
	}

	t.Run("quota detail is rendered under quota", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeError(rr, httptest.NewRequest(http.MethodPost, "/", nil), denied.Error())

		var resp struct {
			Quota quota.Result `json:"quota"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.Quota.Allowed)
		assert.Equal(t, int64(3), resp.Quota.CurrentUsage.Teams)
		assert.Equal(t, 3, resp.Quota.Limits.MaxTeams)
	})
}

func TestWriteChange(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeChange(rr, httptest.NewRequest(http.MethodPut, "/", nil), "Role updated", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.ChangeResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "Role updated", resp.Message)
	})

	t.Run("no-op keeps the change shape", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeChange(rr, httptest.NewRequest(http.MethodPut, "/", nil), "", apperr.New(apperr.KindNoOp, "Member already has this role"))

		assert.Equal(t, http.StatusConflict, rr.Code)
		var resp dto.ChangeResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "no_op", resp.Kind)
		assert.Equal(t, "Member already has this role", resp.Message)
	})

	t.Run("unexpected falls back to error shape", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeChange(rr, httptest.NewRequest(http.MethodPut, "/", nil), "", errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		var resp dto.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "unexpected", resp.Kind)
	})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (r *nameRequest) Validate() map[string]string {
	if r.Name == "" {
		return map[string]string{"name": "Name is required"}
	}
	return nil
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
	}{
		{"valid", `{"name":"Platform"}`, true, http.StatusOK},
		{"malformed json", `{"name":`, false, http.StatusBadRequest},
		{"field errors", `{"name":""}`, false, http.StatusBadRequest},
		{"too large", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, false, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var v nameRequest
			ok := decodeAndValidate(rr, req, &v)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestPathID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		param  string
		wantOK bool
	}{
		{"valid uuid", id.String(), true},
		{"malformed", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.param)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			rr := httptest.NewRecorder()

			got, ok := pathID(rr, req)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, id, got)
			} else {
				assert.Equal(t, http.StatusNotFound, rr.Code)
			}
		})
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"", 1, 20},
		{"?page=3&per_page=10", 3, 10},
		{"?page=-1&per_page=500", 1, 100},
		{"?page=abc", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := pagination(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantPerPage, p.PerPage)
		})
	}
}
