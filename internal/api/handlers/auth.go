package handlers

import (
	"net/http"
	"time"

	"github.com/hugh/go-roster/internal/api/dto"
	"github.com/hugh/go-roster/internal/api/middleware"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/membership"
	"github.com/hugh/go-roster/internal/organizations"
	"github.com/hugh/go-roster/internal/validation"
)

// SessionCookies sets and clears the session and CSRF cookies.
type SessionCookies struct {
	Secure bool
	MaxAge time.Duration
}

func (c SessionCookies) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.MaxAge.Seconds()),
	})
	if csrf, err := middleware.NewCSRFToken(); err == nil {
		middleware.SetCSRFCookie(w, csrf, c.Secure)
	}
}

func (c SessionCookies) clear(w http.ResponseWriter) {
	for _, name := range []string{middleware.TokenCookie, middleware.CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: name == middleware.TokenCookie,
			Secure:   c.Secure,
			MaxAge:   -1,
		})
	}
}

type AuthHandler struct {
	identities    *identity.Service
	organizations *organizations.Service
	members       *membership.Service
	cookies       SessionCookies
}

func NewAuthHandler(identities *identity.Service, orgs *organizations.Service, members *membership.Service, cookies SessionCookies) *AuthHandler {
	return &AuthHandler{
		identities:    identities,
		organizations: orgs,
		members:       members,
		cookies:       cookies,
	}
}

// Signup creates an owner and a new organization.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.organizations.Signup(r.Context(), organizations.SignupInput{
		Email:            req.Email,
		Password:         req.Password,
		DisplayName:      req.DisplayName,
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookies.set(w, res.Session.Token)
	writeJSON(w, http.StatusCreated, dto.AuthResponse{
		Token:        res.Session.Token,
		User:         dto.NewUserDTO(res.User, res.Session.Identity.Email),
		Organization: res.Organization,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.identities.Login(r.Context(), validation.NormalizeEmail(req.Email), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// An identity without a membership (removed, or never accepted) may not
	// hold a session here.
	member, err := h.members.Get(r.Context(), session.Identity.ID, session.Identity.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookies.set(w, session.Token)
	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Token: session.Token,
		User:  dto.NewUserDTO(&member.User, session.Identity.Email),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityID(r.Context())
	member, err := h.members.Get(r.Context(), id, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserDTO(&member.User, middleware.GetEmail(r.Context())))
}
