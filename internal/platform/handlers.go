package platform

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/audit"
	"github.com/postika/postika/internal/auth"
	"github.com/postika/postika/internal/config"
	"github.com/postika/postika/internal/mailer"
	"github.com/postika/postika/internal/sales"
	"github.com/postika/postika/internal/validation"
	"github.com/rs/zerolog/log"
)

type createInviteRequest struct {
	Email       string   `json:"email"`
	InviteeType string   `json:"invitee_type"`
	Permissions []string `json:"permissions"`
}

type createInviteResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	InviteeType string    `json:"invitee_type"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	// Token is only populated in dev mode; production delivers over email.
	Token string `json:"token,omitempty"`
}

// HandleCreateInvite handles POST /api/v1/platform-invitations
func HandleCreateInvite(pool *pgxpool.Pool, cfg *config.Config, m *mailer.Mailer, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}

		var req createInviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		invite, token, err := service.CreateInvite(ctx, actor, CreateInviteParams{
			Email:       email,
			InviteeType: req.InviteeType,
			Permissions: req.Permissions,
			ActorUserID: actorUserID,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidInviteeType):
				apperrors.WriteBadRequest(w, r, "invitee_type must be STAFF or SALESPERSON")
			case errors.Is(err, ErrUnknownPermission):
				apperrors.WriteBadRequest(w, r, err.Error())
			case errors.Is(err, ErrPermissionDenied):
				apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			case errors.Is(err, ErrDuplicatePending):
				apperrors.WriteConflict(w, r, "A pending invitation for this email already exists")
			default:
				log.Error().Err(err).Msg("Failed to create platform invitation")
				apperrors.WriteInternalError(w, r, "Failed to create invitation")
			}
			return
		}

		if err := m.SendPlatformInvite(email, invite.InviteeType, token); err != nil {
			log.Error().Err(err).Str("email", email).Msg("Failed to email platform invitation")
		}

		if err := auditor.LogPlatformInviteCreated(ctx, actorUserID, invite.ID, invite.Email, invite.InviteeType); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		resp := createInviteResponse{
			ID:          invite.ID,
			Email:       invite.Email,
			InviteeType: invite.InviteeType,
			Role:        invite.Role,
			Permissions: invite.Permissions,
			ExpiresAt:   invite.ExpiresAt,
		}
		if cfg.RevealSecretsInResponses() {
			resp.Token = token
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"invitation": resp,
		})
	}
}

// HandleListInvites handles GET /api/v1/platform-invitations
func HandleListInvites(pool *pgxpool.Pool, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}
		if actor.Role != RoleSuperAdmin && actor.Role != RoleStaff {
			apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			return
		}

		items, err := service.ListInvites(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list platform invitations")
			apperrors.WriteInternalError(w, r, "Failed to list invitations")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitations": items,
		})
	}
}

type acceptInviteRequest struct {
	Token               string `json:"token"`
	AcceptTos           bool   `json:"accept_tos"`
	AcceptNotifications bool   `json:"accept_notifications"`
}

// HandleAcceptInvite handles POST /api/v1/platform-invitations/accept
func HandleAcceptInvite(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		var req acceptInviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(pool, cfg.InviteTTLDays)
		result, err := service.Accept(ctx, AcceptParams{
			Token:               req.Token,
			ActorUserID:         actorUserID,
			AcceptTos:           req.AcceptTos,
			AcceptNotifications: req.AcceptNotifications,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrTermsNotAccepted):
				apperrors.WriteBadRequest(w, r, "accept_tos must be true")
			case errors.Is(err, ErrTokenRequired):
				apperrors.WriteBadRequest(w, r, "token is required")
			case errors.Is(err, ErrInviteNotFound):
				apperrors.WriteNotFound(w, r, "Invitation not found")
			case errors.Is(err, ErrAlreadyAccepted):
				apperrors.WriteConflict(w, r, "Invitation already accepted")
			case errors.Is(err, ErrInviteExpired):
				apperrors.WriteGone(w, r, "Invitation expired")
			case errors.Is(err, ErrEmailMismatch):
				apperrors.WriteForbidden(w, r, "Invitation email does not match your account")
			case errors.Is(err, sales.ErrCodeAllocation):
				log.Error().Err(err).Msg("Referral code allocation exhausted")
				apperrors.WriteInternalError(w, r, "Failed to allocate referral code")
			default:
				log.Error().Err(err).Msg("Failed to accept platform invitation")
				apperrors.WriteInternalError(w, r, "Failed to accept invitation")
			}
			return
		}

		if err := auditor.LogPlatformInviteAccepted(ctx, actorUserID, result.InviteID, result.Role); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		body := map[string]any{
			"status":     "ok",
			"user_id":    result.UserID,
			"role":       result.Role,
			"membership": result.Membership,
		}
		if result.Profile != nil {
			body["referral_code"] = result.Profile.ReferralCode
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, body)
	}
}

// HandleDeleteUser handles DELETE /api/v1/platform-invitations/users/{user_id}
func HandleDeleteUser(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}
		if !actor.HasPermission(PermDeletePlatformUsers) {
			apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			return
		}

		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteUnprocessable(w, r, "user_id must be a UUID")
			return
		}

		if err := service.DeactivateUser(ctx, targetUserID); err != nil {
			if errors.Is(err, ErrNotPlatformMember) {
				apperrors.WriteNotFound(w, r, "Platform user not found")
				return
			}
			log.Error().Err(err).Msg("Failed to deactivate platform user")
			apperrors.WriteInternalError(w, r, "Failed to deactivate user")
			return
		}

		if err := auditor.LogPlatformUserDeleted(ctx, actorUserID, targetUserID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deactivated": true,
		})
	}
}
