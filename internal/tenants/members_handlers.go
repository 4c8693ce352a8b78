package tenants

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/audit"
	"github.com/postika/postika/internal/auth"
	"github.com/rs/zerolog/log"
)

// HandleListMembers handles GET /api/v1/tenants/members
func HandleListMembers(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := GetTenant(ctx)

		service := NewService(pool)
		members, err := service.ListMembers(ctx, tenant.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list members")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

type memberUpdateRequest struct {
	Role        *string   `json:"role"`
	Permissions *[]string `json:"permissions"`
	IsActive    *bool     `json:"is_active"`
}

// HandleUpdateMember handles PATCH /api/v1/tenants/members/{user_id}
func HandleUpdateMember(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := GetTenant(ctx)
		actor := GetMembership(ctx)
		actorUserID := auth.GetUserID(ctx)

		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteUnprocessable(w, r, "user_id must be a UUID")
			return
		}

		var req memberUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Role == nil && req.Permissions == nil && req.IsActive == nil {
			apperrors.WriteBadRequest(w, r, "No member fields provided")
			return
		}

		service := NewService(pool)
		previous, err := service.GetMembership(ctx, tenant.ID, targetUserID)
		if err != nil {
			if errors.Is(err, ErrNotMember) {
				apperrors.WriteNotFound(w, r, "Member not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load membership")
			apperrors.WriteInternalError(w, r, "Failed to load member")
			return
		}

		updated, err := service.UpdateMember(ctx, tenant.ID, actorUserID, targetUserID, actor.Role, MemberUpdate{
			Role:        req.Role,
			Permissions: req.Permissions,
			IsActive:    req.IsActive,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidMemberRole):
				apperrors.WriteUnprocessable(w, r, "Invalid role")
			case errors.Is(err, ErrMemberNotFound):
				apperrors.WriteNotFound(w, r, "Member not found")
			case errors.Is(err, ErrCannotModifySelf):
				apperrors.WriteConflict(w, r, "Cannot deactivate your own membership")
			case errors.Is(err, ErrOwnerChangeForbidden):
				apperrors.WriteForbidden(w, r, "Only an owner may modify an owner")
			case errors.Is(err, ErrLastOwner):
				apperrors.WriteConflict(w, r, "Tenant must keep at least one active owner")
			default:
				log.Error().Err(err).Msg("Failed to update member")
				apperrors.WriteInternalError(w, r, "Failed to update member")
			}
			return
		}

		if err := auditor.LogTenantMemberUpdated(ctx, tenant.ID, actorUserID, targetUserID, previous.Role, updated.Role, updated.IsActive); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"membership": updated,
		})
	}
}
