package sales

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/auth"
	"github.com/rs/zerolog/log"
)

// HandleListMyEarnings handles GET /api/v1/sales/me/earnings
func HandleListMyEarnings(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		limit := parseQueryInt(r, "limit", 20)
		offset := parseQueryInt(r, "offset", 0)
		if limit < 1 || limit > 100 {
			apperrors.WriteBadRequest(w, r, "limit must be between 1 and 100")
			return
		}
		if offset < 0 {
			apperrors.WriteBadRequest(w, r, "offset must not be negative")
			return
		}

		service := NewService(pool)
		profile, err := service.GetProfileByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				apperrors.WriteForbidden(w, r, "Not a salesperson")
				return
			}
			log.Error().Err(err).Msg("Failed to load salesperson profile")
			apperrors.WriteInternalError(w, r, "Failed to load profile")
			return
		}
		if !profile.IsActive {
			apperrors.WriteForbidden(w, r, "Salesperson profile is deactivated")
			return
		}

		events, err := service.ListEarnings(ctx, profile.ID, limit, offset)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list earnings")
			apperrors.WriteInternalError(w, r, "Failed to list earnings")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"earnings": events,
			"limit":    limit,
			"offset":   offset,
		})
	}
}

// HandleMyStats handles GET /api/v1/sales/me/stats
func HandleMyStats(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		profile, err := service.GetProfileByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				apperrors.WriteForbidden(w, r, "Not a salesperson")
				return
			}
			log.Error().Err(err).Msg("Failed to load salesperson profile")
			apperrors.WriteInternalError(w, r, "Failed to load profile")
			return
		}
		if !profile.IsActive {
			apperrors.WriteForbidden(w, r, "Salesperson profile is deactivated")
			return
		}

		stats, err := service.GetStats(ctx, profile.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to aggregate earnings")
			apperrors.WriteInternalError(w, r, "Failed to load stats")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"referral_code": profile.ReferralCode,
			"stats":         stats,
		})
	}
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
