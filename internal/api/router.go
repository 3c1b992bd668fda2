package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/go-roster/internal/api/handlers"
	"github.com/hugh/go-roster/internal/api/middleware"
	"github.com/hugh/go-roster/internal/audit"
	"github.com/hugh/go-roster/internal/avatars"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/invites"
	"github.com/hugh/go-roster/internal/membership"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/organizations"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/teams"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Logger   *slog.Logger
	Identity *identity.Service
	Sender   notify.Sender
	Locker   quota.Locker
	// ObjectStore is nil when avatar storage is not configured.
	ObjectStore    avatars.ObjectStore
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	SecureCookies  bool
	SessionTTL     time.Duration
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(metrics.HTTPMetricsMiddleware)

	if cfg.RateLimitReqs > 0 {
		var limiter middleware.Limiter = middleware.NewMemoryLimiter(cfg.RateLimitReqs, cfg.RateLimitSecs)
		if cfg.Redis != nil {
			limiter = middleware.NewRedisLimiter(cfg.Redis, cfg.RateLimitReqs, cfg.RateLimitSecs)
		}
		r.Use(middleware.RateLimit(limiter, cfg.Logger))
	}

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.CSRFHeaderName},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize services
	st := store.New(cfg.DB)
	evaluator := quota.NewEvaluator(st, cfg.Logger)
	recorder := audit.NewRecorder(st, cfg.Logger)
	provider := cfg.Identity.Provider()

	membershipService := membership.NewService(st, provider, cfg.Sender, recorder, cfg.Logger)
	teamService := teams.NewService(st, evaluator, cfg.Locker, recorder, cfg.Logger)
	inviteService := invites.NewService(st, evaluator, cfg.Locker, provider, cfg.Sender, recorder, cfg.Logger)
	orgService := organizations.NewService(st, cfg.Identity, evaluator, recorder, cfg.Logger)
	avatarService := avatars.NewService(st, cfg.ObjectStore, cfg.Logger)

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	cookies := handlers.SessionCookies{Secure: cfg.SecureCookies, MaxAge: sessionTTL}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.Identity, orgService, membershipService, cookies)
	orgHandler := handlers.NewOrganizationHandler(orgService)
	memberHandler := handlers.NewMemberHandler(membershipService, avatarService)
	teamHandler := handlers.NewTeamHandler(teamService)
	inviteHandler := handlers.NewInviteHandler(inviteService, cfg.Identity, cookies)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/invites/{id}", inviteHandler.Validate)
		r.Post("/invites/{id}/accept", inviteHandler.Accept)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Identity))
			r.Use(middleware.CSRF())

			r.Get("/me", authHandler.Me)

			r.Route("/organization", func(r chi.Router) {
				r.Get("/", orgHandler.Get)
				r.Put("/", orgHandler.Update)
				r.Get("/quota", orgHandler.Quota)
				r.Get("/activity", orgHandler.Activity)
			})

			r.Route("/members", func(r chi.Router) {
				r.Get("/", memberHandler.List)
				r.Get("/{id}", memberHandler.Get)
				r.Delete("/{id}", memberHandler.Remove)
				r.Put("/{id}/team", memberHandler.MoveTeam)
				r.Put("/{id}/role", memberHandler.ChangeRole)
				r.Put("/{id}/avatar", memberHandler.UploadAvatar)
			})

			r.Route("/teams", func(r chi.Router) {
				r.Get("/", teamHandler.List)
				r.Post("/", teamHandler.Create)
				r.Get("/{id}", teamHandler.Get)
				r.Put("/{id}", teamHandler.Update)
				r.Delete("/{id}", teamHandler.Delete)
			})

			r.Get("/invites", inviteHandler.List)
			r.Post("/invites", inviteHandler.Create)
			r.Post("/invites/batch", inviteHandler.CreateBatch)
			r.Post("/invites/{id}/resend", inviteHandler.Resend)
			r.Delete("/invites/{id}", inviteHandler.Revoke)
		})
	})

	return &Router{r}
}

// Handler wraps the router with request tracing.
func (rt *Router) Handler() http.Handler {
	return otelhttp.NewHandler(rt.Router, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
