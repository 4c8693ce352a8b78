package platform

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/audit"
	"github.com/postika/postika/internal/auth"
	"github.com/postika/postika/internal/config"
	"github.com/postika/postika/internal/sales"
	"github.com/postika/postika/internal/validation"
	"github.com/rs/zerolog/log"
)

type createSalespersonRequest struct {
	Email  string     `json:"email"`
	UserID *uuid.UUID `json:"user_id"`
}

// HandleCreateSalesperson handles POST /api/v1/platform-sales/salespeople
//
// Direct creation path for platform admins; the invitation flow is the
// normal route. Target is named by user id or by email of an existing user.
func HandleCreateSalesperson(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}
		if !actor.HasPermission(PermInviteSalespeople) {
			apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			return
		}

		var req createSalespersonRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		var targetUserID uuid.UUID
		switch {
		case req.UserID != nil:
			targetUserID = *req.UserID
		case req.Email != "":
			email, err := validation.NormalizeEmail(req.Email)
			if err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			authService := auth.NewService(pool, cfg.MagicCodeTTLMin)
			user, err := authService.GetUserByEmail(ctx, email)
			if err != nil {
				if errors.Is(err, auth.ErrUserNotFound) {
					apperrors.WriteNotFound(w, r, "No user with that email")
					return
				}
				log.Error().Err(err).Msg("Failed to look up user")
				apperrors.WriteInternalError(w, r, "Failed to look up user")
				return
			}
			targetUserID = user.ID
		default:
			apperrors.WriteBadRequest(w, r, "email or user_id is required")
			return
		}

		salesService := sales.NewService(pool)
		profile, err := salesService.CreateProfileForUser(ctx, targetUserID)
		if err != nil {
			switch {
			case errors.Is(err, sales.ErrProfileExists):
				apperrors.WriteConflict(w, r, "Salesperson profile already exists")
			case errors.Is(err, sales.ErrCodeAllocation):
				log.Error().Err(err).Msg("Referral code allocation exhausted")
				apperrors.WriteInternalError(w, r, "Failed to allocate referral code")
			default:
				log.Error().Err(err).Msg("Failed to create salesperson profile")
				apperrors.WriteInternalError(w, r, "Failed to create salesperson")
			}
			return
		}

		if err := auditor.LogSalespersonCreated(ctx, actorUserID, targetUserID, profile.ReferralCode); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"profile": profile,
		})
	}
}

// HandleListSalespeople handles GET /api/v1/platform-sales/salespeople
func HandleListSalespeople(pool *pgxpool.Pool, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}
		if !actor.HasPermission(PermViewSalesDashboardAdmin) {
			apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			return
		}

		limit, offset := 50, 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 200 {
				apperrors.WriteBadRequest(w, r, "limit must be between 1 and 200")
				return
			}
			limit = n
		}
		if raw := r.URL.Query().Get("offset"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				apperrors.WriteBadRequest(w, r, "offset must be non-negative")
				return
			}
			offset = n
		}

		salesService := sales.NewService(pool)
		profiles, total, err := salesService.ListProfiles(ctx, limit, offset)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list salespeople")
			apperrors.WriteInternalError(w, r, "Failed to list salespeople")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"items":  profiles,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}

type updateSalespersonRequest struct {
	IsActive         *bool   `json:"is_active"`
	LastPaymentPhone *string `json:"last_payment_phone"`
}

// HandleUpdateSalesperson handles
// PATCH /api/v1/platform-sales/salespeople/{salesperson_id}
//
// Deactivation stops the referral code from resolving; ledger rows stay.
func HandleUpdateSalesperson(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}
		if !actor.HasPermission(PermInviteSalespeople) {
			apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			return
		}

		profileID, err := uuid.Parse(chi.URLParam(r, "salesperson_id"))
		if err != nil {
			apperrors.WriteUnprocessable(w, r, "salesperson_id must be a UUID")
			return
		}

		var req updateSalespersonRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.IsActive == nil && req.LastPaymentPhone == nil {
			apperrors.WriteBadRequest(w, r, "No salesperson fields provided")
			return
		}

		params := sales.UpdateProfileParams{IsActive: req.IsActive}
		if req.LastPaymentPhone != nil {
			phone, err := validation.NormalizePhoneE164(*req.LastPaymentPhone)
			if err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			params.LastPaymentPhone = &phone
		}

		salesService := sales.NewService(pool)
		profile, err := salesService.UpdateProfile(ctx, profileID, params)
		if err != nil {
			if errors.Is(err, sales.ErrProfileNotFound) {
				apperrors.WriteNotFound(w, r, "Salesperson not found")
				return
			}
			log.Error().Err(err).Msg("Failed to update salesperson")
			apperrors.WriteInternalError(w, r, "Failed to update salesperson")
			return
		}

		if err := auditor.LogSalespersonUpdated(ctx, actorUserID, profile.ID, profile.IsActive); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"profile": profile,
		})
	}
}

// HandleRotateReferralCode handles
// POST /api/v1/platform-sales/salespeople/{salesperson_id}/rotate-code
func HandleRotateReferralCode(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}
		if !actor.HasPermission(PermInviteSalespeople) {
			apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			return
		}

		profileID, err := uuid.Parse(chi.URLParam(r, "salesperson_id"))
		if err != nil {
			apperrors.WriteUnprocessable(w, r, "salesperson_id must be a UUID")
			return
		}

		salesService := sales.NewService(pool)
		profile, err := salesService.RotateReferralCode(ctx, profileID)
		if err != nil {
			switch {
			case errors.Is(err, sales.ErrProfileNotFound):
				apperrors.WriteNotFound(w, r, "Salesperson not found")
			case errors.Is(err, sales.ErrCodeAllocation):
				log.Error().Err(err).Msg("Referral code allocation exhausted")
				apperrors.WriteInternalError(w, r, "Failed to allocate referral code")
			default:
				log.Error().Err(err).Msg("Failed to rotate referral code")
				apperrors.WriteInternalError(w, r, "Failed to rotate referral code")
			}
			return
		}

		if err := auditor.LogSalespersonCodeRotated(ctx, actorUserID, profile.ID, profile.ReferralCode); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"profile": profile,
		})
	}
}

type assignPaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Phone       string `json:"phone"`
}

// HandleAssignPayment handles
// POST /api/v1/platform-invitations/salespeople/{user_id}/assign-payment
func HandleAssignPayment(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		service := NewService(pool, cfg.InviteTTLDays)
		actor, err := service.RequireActiveMembership(ctx, actorUserID)
		if err != nil {
			apperrors.WriteForbidden(w, r, "Platform access required")
			return
		}
		if !actor.HasPermission(PermAssignSalesPayments) {
			apperrors.WriteForbidden(w, r, "Insufficient platform permissions")
			return
		}

		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteUnprocessable(w, r, "user_id must be a UUID")
			return
		}

		var req assignPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.AmountCents <= 0 {
			apperrors.WriteBadRequest(w, r, "amount_cents must be positive")
			return
		}
		phone, err := validation.NormalizePhoneE164(req.Phone)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if phone == "" {
			apperrors.WriteBadRequest(w, r, "phone is required")
			return
		}

		salesService := sales.NewService(pool)
		profile, err := salesService.AssignPayment(ctx, targetUserID, req.AmountCents, phone)
		if err != nil {
			if errors.Is(err, sales.ErrProfileNotFound) {
				apperrors.WriteNotFound(w, r, "Salesperson not found")
				return
			}
			log.Error().Err(err).Msg("Failed to assign payment")
			apperrors.WriteInternalError(w, r, "Failed to assign payment")
			return
		}

		if err := auditor.LogSalesPaymentAssigned(ctx, actorUserID, targetUserID, req.AmountCents, phone); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"profile": profile,
		})
	}
}

// HandleAudit handles GET /api/v1/platform-audit
func HandleAudit(pool *pgxpool.Pool, cfg *config.Config) http.HandlerFunc {
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

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 200 {
				apperrors.WriteBadRequest(w, r, "limit must be between 1 and 200")
				return
			}
			limit = n
		}

		reader := audit.NewReader(pool)
		events, err := reader.List(ctx, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read audit log")
			apperrors.WriteInternalError(w, r, "Failed to read audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}
