package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityService(t *testing.T) (*identity.Service, *testutil.TestSetup, string) {
	t.Helper()
	tc := testutil.NewTestContext(t)
	ids := identity.NewService(identity.NewLocalProvider(tc.DB), tc.JWTService)
	token := testutil.GenerateTestToken(t, tc.DB, tc.JWTService, tc.Member)
	return ids, tc, token
}

func TestAuth(t *testing.T) {
	ids, tc, token := newIdentityService(t)

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantCookie bool
	}{
		{
			name:       "bearer header",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "session cookie",
			prepare:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: token}) },
			wantStatus: http.StatusOK,
			wantCookie: true,
		},
		{
			name:       "missing token",
			prepare:    func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID uuid.UUID
			var gotCookie bool
			handler := Auth(ids)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID = GetIdentityID(r.Context())
				gotCookie = isCookieAuth(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tc.Member.ID, gotID)
				assert.Equal(t, tt.wantCookie, gotCookie)
			} else {
				assert.Contains(t, rec.Body.String(), `"kind":"unauthorized"`)
			}
		})
	}
}

func TestAuth_DeletedIdentityIsRejected(t *testing.T) {
	ids, tc, token := newIdentityService(t)
	require.NoError(t, ids.Provider().DeleteIdentity(testutil.TestContext(t), tc.Member.ID))

	handler := Auth(ids)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRF(t *testing.T) {
	ids, _, token := newIdentityService(t)
	chain := Auth(ids)(CSRF()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name       string
		method     string
		bearer     bool
		cookie     string
		header     string
		wantStatus int
	}{
		{"safe method skips check", http.MethodGet, false, "", "", http.StatusNoContent},
		{"bearer skips check", http.MethodPost, true, "", "", http.StatusNoContent},
		{"cookie auth without token", http.MethodPost, false, "", "", http.StatusForbidden},
		{"cookie auth mismatched token", http.MethodDelete, false, "abc", "xyz", http.StatusForbidden},
		{"cookie auth matching token", http.MethodPut, false, "abc", "abc", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/teams", nil)
			if tt.bearer {
				req.Header.Set("Authorization", "Bearer "+token)
			} else {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			chain.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
