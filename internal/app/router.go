package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/audit"
	"github.com/postika/postika/internal/auth"
	"github.com/postika/postika/internal/config"
	"github.com/postika/postika/internal/invites"
	"github.com/postika/postika/internal/mailer"
	"github.com/postika/postika/internal/platform"
	"github.com/postika/postika/internal/rbac"
	"github.com/postika/postika/internal/sales"
	"github.com/postika/postika/internal/tenants"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes.
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, m *mailer.Mailer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenants.TenantIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.BearerMiddleware(cfg.JWTSecret))

	auditor := audit.NewWriter(pool)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(CodeRequestRateLimit(cfg.RateLimitRPM)).
			Post("/request-code", auth.HandleRequestCode(pool, cfg, m, auditor))
		r.Post("/verify-code", auth.HandleVerifyCode(pool, cfg))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/me", auth.HandleGetMe(pool, cfg))
			r.Patch("/me", auth.HandlePatchMe(pool, cfg))
		})
	})

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/", tenants.HandleCreate(pool, cfg, auditor))
		r.Get("/", tenants.HandleList(pool))

		// Tenant-scoped routes resolve X-Tenant-Id into a tenant and the
		// caller's active membership.
		r.Group(func(r chi.Router) {
			r.Use(tenants.RequireTenant(pool))

			r.Get("/current", tenants.HandleCurrent())
			r.Get("/membership", tenants.HandleMyMembership())

			r.With(tenants.RequirePermission(rbac.PermTenantMembersRead)).
				Get("/audit", tenants.HandleAudit(pool))

			r.With(tenants.RequirePermission(rbac.PermTenantMembersRead)).
				Get("/members", tenants.HandleListMembers(pool))
			r.With(tenants.RequirePermission(rbac.PermTenantMembersWrite)).
				Patch("/members/{user_id}", tenants.HandleUpdateMember(pool, auditor))
		})
	})

	r.Route("/api/v1/tenant-invitations", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		// Acceptance needs no tenant scope: the invitation names the tenant.
		r.Post("/accept", invites.HandleAccept(pool, cfg, auditor))

		r.Group(func(r chi.Router) {
			r.Use(tenants.RequireTenant(pool))
			r.Use(tenants.RequirePermission(rbac.PermTenantInvitesManage))

			r.Post("/", invites.HandleCreate(pool, cfg, m, auditor))
			r.Get("/", invites.HandleList(pool, cfg))
			r.Delete("/{invite_id}", invites.HandleRevoke(pool, cfg, auditor))
		})
	})

	r.Route("/api/v1/platform-invitations", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/", platform.HandleCreateInvite(pool, cfg, m, auditor))
		r.Get("/", platform.HandleListInvites(pool, cfg))
		r.Post("/accept", platform.HandleAcceptInvite(pool, cfg, auditor))
		r.Delete("/users/{user_id}", platform.HandleDeleteUser(pool, cfg, auditor))
		r.Post("/salespeople/{user_id}/assign-payment", platform.HandleAssignPayment(pool, cfg, auditor))
	})

	r.Route("/api/v1/platform-sales", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/salespeople", platform.HandleCreateSalesperson(pool, cfg, auditor))
		r.Get("/salespeople", platform.HandleListSalespeople(pool, cfg))
		r.Patch("/salespeople/{salesperson_id}", platform.HandleUpdateSalesperson(pool, cfg, auditor))
		r.Post("/salespeople/{salesperson_id}/rotate-code", platform.HandleRotateReferralCode(pool, cfg, auditor))
	})

	r.With(ContentTypeJSON, auth.RequireAuth).
		Get("/api/v1/platform-audit", platform.HandleAudit(pool, cfg))

	r.Route("/api/v1/sales", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Get("/me/earnings", sales.HandleListMyEarnings(pool))
		r.Get("/me/stats", sales.HandleMyStats(pool))
	})

	return r
}

// handleHealthz is a liveness check.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz is a readiness check including database connectivity.
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
