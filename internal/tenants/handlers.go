package tenants

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/audit"
	"github.com/postika/postika/internal/auth"
	"github.com/postika/postika/internal/config"
	"github.com/postika/postika/internal/sales"
	"github.com/postika/postika/internal/validation"
	"github.com/rs/zerolog/log"
)

type createTenantRequest struct {
	Name               string `json:"name"`
	AcceptedTerms      bool   `json:"accepted_terms"`
	NotificationsOptIn *bool  `json:"notifications_opt_in"`
	ReferralCode       string `json:"referral_code"`
}

// HandleCreate handles POST /api/v1/tenants
func HandleCreate(pool *pgxpool.Pool, cfg *config.Config, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req createTenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if !req.AcceptedTerms {
			apperrors.WriteBadRequest(w, r, "accepted_terms must be true")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "name is required")
			return
		}
		if len(req.Name) > 200 {
			apperrors.WriteBadRequest(w, r, "name is too long")
			return
		}

		salesService := sales.NewService(pool)
		params := CreateParams{
			Name:               req.Name,
			OwnerUserID:        userID,
			NotificationsOptIn: req.NotificationsOptIn,
		}

		if raw := strings.TrimSpace(req.ReferralCode); raw != "" {
			code := validation.NormalizeReferralCode(raw)
			if code == "" {
				apperrors.WriteBadRequest(w, r, "referral_code must be 6 characters A-Z0-9")
				return
			}
			profile, err := salesService.ResolveByReferralCode(ctx, code)
			if err != nil {
				if errors.Is(err, sales.ErrProfileNotFound) {
					apperrors.WriteBadRequest(w, r, "Unknown referral code")
					return
				}
				log.Error().Err(err).Msg("Failed to resolve referral code")
				apperrors.WriteInternalError(w, r, "Failed to resolve referral code")
				return
			}
			params.ReferralCode = code
			params.SalespersonProfileID = &profile.ID
		}

		service := NewService(pool)
		tenant, err := service.CreateWithOwner(ctx, params)
		if err != nil {
			if errors.Is(err, ErrTenantLimitReached) {
				apperrors.WriteSuccess(w, r, http.StatusConflict, map[string]any{
					"error":   "tenant_limit_reached",
					"message": "You already own a tenant",
					"limit":   OwnedTenantLimit,
				})
				return
			}
			log.Error().Err(err).Msg("Failed to create tenant")
			apperrors.WriteInternalError(w, r, "Failed to create tenant")
			return
		}

		if err := auditor.LogTenantCreated(ctx, tenant.ID, userID, tenant.Name, tenant.Tier); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		if params.SalespersonProfileID != nil {
			event, err := salesService.RecordEarning(ctx, sales.RecordEarningParams{
				SalespersonProfileID: *params.SalespersonProfileID,
				TenantID:             &tenant.ID,
				EventType:            sales.EventTenantSignup,
				GrossAmountCents:     cfg.SignupGrossCents,
				Source:               "signup",
				Meta: map[string]any{
					"tenant_name":   tenant.Name,
					"tenant_tier":   tenant.Tier,
					"referral_code": params.ReferralCode,
				},
			})
			if err != nil {
				log.Error().Err(err).Msg("Failed to record signup earning event")
			} else if err := auditor.LogEarningRecorded(ctx, tenant.ID, *params.SalespersonProfileID, sales.EventTenantSignup, event.CommissionAmountCents); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"tenant": tenant,
		})
	}
}

// HandleList handles GET /api/v1/tenants
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		list, err := service.ListForUser(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list tenants")
			apperrors.WriteInternalError(w, r, "Failed to list tenants")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"tenants": list,
		})
	}
}

// HandleCurrent handles GET /api/v1/tenants/current
func HandleCurrent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := GetTenant(r.Context())
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"tenant":         tenant,
			"effective_tier": tenant.EffectiveTier(time.Now().UTC()),
		})
	}
}

// HandleAudit handles GET /api/v1/tenants/audit
func HandleAudit(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := GetTenant(ctx)

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 200 {
				apperrors.WriteBadRequest(w, r, "limit must be between 1 and 200")
				return
			}
			limit = n
		}

		events, err := audit.NewReader(pool).ListByTenant(ctx, tenant.ID, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit events")
			apperrors.WriteInternalError(w, r, "Failed to list audit events")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}

// HandleMyMembership handles GET /api/v1/tenants/membership
func HandleMyMembership() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		membership := GetMembership(r.Context())
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"membership": membership,
		})
	}
}
