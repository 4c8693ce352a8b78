package tenants

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/auth"
	"github.com/postika/postika/internal/rbac"
	"github.com/rs/zerolog/log"
)

// TenantIDHeader selects the tenant a request operates on.
const TenantIDHeader = "X-Tenant-Id"

type contextKey string

const (
	tenantContextKey     contextKey = "tenant"
	membershipContextKey contextKey = "membership"
)

// RequireTenant resolves the X-Tenant-Id header into a tenant and the
// caller's active membership, rejecting requests that have neither. Must run
// after auth.RequireAuth.
func RequireTenant(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := auth.GetUserID(ctx)

			raw := r.Header.Get(TenantIDHeader)
			if raw == "" {
				apperrors.WriteBadRequest(w, r, TenantIDHeader+" header is required")
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				apperrors.WriteUnprocessable(w, r, TenantIDHeader+" must be a UUID")
				return
			}

			service := NewService(pool)
			tenant, err := service.GetByID(ctx, tenantID)
			if err != nil {
				if errors.Is(err, ErrTenantNotFound) {
					apperrors.WriteNotFound(w, r, "Tenant not found")
					return
				}
				log.Error().Err(err).Msg("Failed to resolve tenant")
				apperrors.WriteInternalError(w, r, "Failed to resolve tenant")
				return
			}

			membership, err := service.GetMembership(ctx, tenantID, userID)
			if err != nil {
				if errors.Is(err, ErrNotMember) {
					apperrors.WriteForbidden(w, r, "Not a member of this tenant")
					return
				}
				log.Error().Err(err).Msg("Failed to resolve membership")
				apperrors.WriteInternalError(w, r, "Failed to resolve membership")
				return
			}
			if !membership.IsActive {
				apperrors.WriteForbidden(w, r, "Membership is deactivated")
				return
			}

			ctx = context.WithValue(ctx, tenantContextKey, tenant)
			ctx = context.WithValue(ctx, membershipContextKey, membership)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on an rbac permission, evaluated against
// the scoped membership's role and extra grants.
func RequirePermission(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			membership := GetMembership(r.Context())
			if membership == nil {
				apperrors.WriteForbidden(w, r, "Not a member of this tenant")
				return
			}

			grants := rbac.Effective(membership.Role, membership.Permissions)
			if !rbac.IsPermitted(membership.Role, grants, required) {
				apperrors.WriteForbidden(w, r, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetTenant returns the tenant resolved by RequireTenant, or nil.
func GetTenant(ctx context.Context) *Tenant {
	tenant, _ := ctx.Value(tenantContextKey).(*Tenant)
	return tenant
}

// GetMembership returns the membership resolved by RequireTenant, or nil.
func GetMembership(ctx context.Context) *Membership {
	membership, _ := ctx.Value(membershipContextKey).(*Membership)
	return membership
}
