package invites

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
	"github.com/postika/postika/internal/rbac"
	"github.com/postika/postika/internal/tenants"
	"github.com/postika/postika/internal/tier"
	"github.com/postika/postika/internal/validation"
	"github.com/rs/zerolog/log"
)

type createInviteRequest struct {
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type createInviteResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	// Token is only populated in dev mode; production delivers over email.
	Token string `json:"token,omitempty"`
}

func newService(pool *pgxpool.Pool, cfg *config.Config) *Service {
	return NewService(pool, tier.NewLimits(cfg.TierStaffCaps, cfg.TierAdminCap), cfg.InviteTTLDays)
}

// HandleCreate handles POST /api/v1/tenant-invitations
func HandleCreate(pool *pgxpool.Pool, cfg *config.Config, m *mailer.Mailer, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := tenants.GetTenant(ctx)
		actorUserID := auth.GetUserID(ctx)

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

		role := rbac.NormalizeRole(req.Role)
		if role != rbac.RoleAdmin && role != rbac.RoleStaff {
			apperrors.WriteUnprocessable(w, r, "role must be ADMIN or STAFF")
			return
		}

		service := newService(pool, cfg)
		invite, token, err := service.CreateInvite(ctx, tenant.ID, actorUserID, email, role, req.Permissions)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidInviteRole):
				apperrors.WriteUnprocessable(w, r, "role must be ADMIN or STAFF")
			case errors.Is(err, ErrAlreadyMember):
				apperrors.WriteConflict(w, r, "User is already an active member of this tenant")
			case errors.Is(err, ErrDuplicatePending):
				apperrors.WriteConflict(w, r, "A pending invitation for this email already exists")
			default:
				log.Error().Err(err).Msg("Failed to create invitation")
				apperrors.WriteInternalError(w, r, "Failed to create invitation")
			}
			return
		}

		if err := m.SendTenantInvite(email, tenant.Name, token); err != nil {
			log.Error().Err(err).Str("email", email).Msg("Failed to email invitation")
		}

		if err := auditor.LogInviteCreated(ctx, tenant.ID, actorUserID, invite.ID, invite.Email, invite.Role); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		resp := createInviteResponse{
			ID:        invite.ID,
			Email:     invite.Email,
			Role:      invite.Role,
			ExpiresAt: invite.ExpiresAt,
		}
		if cfg.RevealSecretsInResponses() {
			resp.Token = token
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"invitation": resp,
		})
	}
}

// HandleList handles GET /api/v1/tenant-invitations
func HandleList(pool *pgxpool.Pool, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := tenants.GetTenant(ctx)

		service := newService(pool, cfg)
		items, err := service.ListInvites(ctx, tenant.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list invitations")
			apperrors.WriteInternalError(w, r, "Failed to list invitations")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitations": items,
		})
	}
}

// HandleRevoke handles DELETE /api/v1/tenant-invitations/{invite_id}
func HandleRevoke(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := tenants.GetTenant(ctx)
		actorUserID := auth.GetUserID(ctx)

		inviteID, err := uuid.Parse(chi.URLParam(r, "invite_id"))
		if err != nil {
			apperrors.WriteUnprocessable(w, r, "invite_id must be a UUID")
			return
		}

		service := newService(pool, cfg)
		if err := service.RevokeInvite(ctx, tenant.ID, inviteID, actorUserID); err != nil {
			if errors.Is(err, ErrInviteNotFound) {
				apperrors.WriteNotFound(w, r, "Invitation not found")
				return
			}
			log.Error().Err(err).Msg("Failed to revoke invitation")
			apperrors.WriteInternalError(w, r, "Failed to revoke invitation")
			return
		}

		if err := auditor.LogInviteRevoked(ctx, tenant.ID, actorUserID, inviteID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"revoked": true,
		})
	}
}

type acceptInviteRequest struct {
	Token               string `json:"token"`
	AcceptTos           bool   `json:"accept_tos"`
	AcceptNotifications *bool  `json:"accept_notifications"`
}

// HandleAccept handles POST /api/v1/tenant-invitations/accept
//
// The acting identity comes from the bearer token; the invitation email must
// match the authenticated account.
func HandleAccept(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		var req acceptInviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := newService(pool, cfg)
		result, err := service.Accept(ctx, AcceptParams{
			Token:               req.Token,
			ActorUserID:         actorUserID,
			AcceptTos:           req.AcceptTos,
			AcceptNotifications: req.AcceptNotifications,
		})
		if err != nil {
			WriteAcceptError(w, r, err)
			return
		}

		if err := auditor.LogInviteAccepted(ctx, result.TenantID, result.UserID, result.InviteID, result.Role); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"status":    "ok",
			"tenant_id": result.TenantID,
			"user_id":   result.UserID,
			"role":      result.Role,
		})
	}
}

// WriteAcceptError translates engine errors into transport responses.
// Seat-limit rejections carry the structured payload; everything else uses
// the plain detail envelope.
func WriteAcceptError(w http.ResponseWriter, r *http.Request, err error) {
	var seatErr *SeatLimitError
	if errors.As(err, &seatErr) {
		resp := apperrors.SeatLimitResponse{
			Message: "Your plan's seat limit for this role is full. Upgrade to add more members.",
			Tier:    seatErr.Tier,
			Limit:   seatErr.Limit,
		}
		active := seatErr.ActiveCount
		if seatErr.Role == rbac.RoleAdmin {
			resp.ActiveAdmins = &active
		} else {
			resp.ActiveStaff = &active
		}
		apperrors.WriteSeatLimit(w, r, resp)
		return
	}

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
	case errors.Is(err, ErrInvalidInviteRole):
		apperrors.WriteBadRequest(w, r, "Invitation role must be ADMIN or STAFF")
	case errors.Is(err, ErrConflict):
		apperrors.WriteConflict(w, r, "Invitation conflict, please retry")
	default:
		log.Error().Err(err).Msg("Failed to accept invitation")
		apperrors.WriteInternalError(w, r, "Failed to accept invitation")
	}
}
