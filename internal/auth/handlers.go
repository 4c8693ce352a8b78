package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/apperrors"
	"github.com/postika/postika/internal/audit"
	"github.com/postika/postika/internal/config"
	"github.com/postika/postika/internal/mailer"
	"github.com/postika/postika/internal/validation"
	"github.com/rs/zerolog/log"
)

type requestCodeRequest struct {
	Email string `json:"email"`
}

type requestCodeResponse struct {
	Status string `json:"status"`
	// Code is only populated in dev mode; production delivers over email.
	Code string `json:"code,omitempty"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type profileResponse struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	FullName        *string   `json:"full_name"`
	PhoneE164       *string   `json:"phone_e164"`
	Country         *string   `json:"country"`
	ProfileComplete bool      `json:"profile_complete"`
	CreatedAt       time.Time `json:"created_at"`
}

func profileBody(u *User) profileResponse {
	return profileResponse{
		ID:              u.ID,
		Email:           u.Email,
		FullName:        u.FullName,
		PhoneE164:       u.PhoneE164,
		Country:         u.Country,
		ProfileComplete: u.ProfileComplete(),
		CreatedAt:       u.CreatedAt,
	}
}

// HandleRequestCode handles POST /api/v1/auth/request-code
func HandleRequestCode(pool *pgxpool.Pool, cfg *config.Config, m *mailer.Mailer, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req requestCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool, cfg.MagicCodeTTLMin)
		code, err := service.RequestCode(ctx, email)
		if err != nil {
			if errors.Is(err, ErrUserInactive) {
				apperrors.WriteForbidden(w, r, "Account is deactivated")
				return
			}
			log.Error().Err(err).Msg("Failed to issue magic code")
			apperrors.WriteInternalError(w, r, "Failed to issue login code")
			return
		}

		if err := m.SendMagicCode(email, code, cfg.MagicCodeTTLMin); err != nil {
			log.Error().Err(err).Str("email", email).Msg("Failed to email magic code")
		}

		if err := auditor.LogCodeRequested(ctx, email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		resp := requestCodeResponse{Status: "ok"}
		if cfg.RevealSecretsInResponses() {
			resp.Code = code
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// HandleVerifyCode handles POST /api/v1/auth/verify-code
func HandleVerifyCode(pool *pgxpool.Pool, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req verifyCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if req.Code == "" {
			apperrors.WriteBadRequest(w, r, "code is required")
			return
		}

		service := NewService(pool, cfg.MagicCodeTTLMin)
		user, err := service.VerifyCode(ctx, email, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, ErrCodeExpired):
				apperrors.WriteUnauthorized(w, r, "Code expired")
			case errors.Is(err, ErrInvalidCode):
				apperrors.WriteUnauthorized(w, r, "Invalid code")
			case errors.Is(err, ErrUserInactive):
				apperrors.WriteForbidden(w, r, "Account is deactivated")
			default:
				log.Error().Err(err).Msg("Failed to verify magic code")
				apperrors.WriteInternalError(w, r, "Failed to verify code")
			}
			return
		}

		token, err := CreateToken(user.ID, cfg.JWTSecret, cfg.AccessTokenMinutes)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create access token")
			apperrors.WriteInternalError(w, r, "Failed to create access token")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, tokenResponse{
			AccessToken: token,
			TokenType:   "bearer",
		})
	}
}

// HandleGetMe handles GET /api/v1/auth/me
func HandleGetMe(pool *pgxpool.Pool, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := GetUserID(ctx)

		service := NewService(pool, cfg.MagicCodeTTLMin)
		user, err := service.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				apperrors.WriteNotFound(w, r, "User not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load user")
			apperrors.WriteInternalError(w, r, "Failed to load user")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, profileBody(user))
	}
}

type patchMeRequest struct {
	FullName  *string `json:"full_name"`
	PhoneE164 *string `json:"phone_e164"`
	Country   *string `json:"country"`
}

// HandlePatchMe handles PATCH /api/v1/auth/me
func HandlePatchMe(pool *pgxpool.Pool, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := GetUserID(ctx)

		var req patchMeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		var update ProfileUpdate
		if req.FullName != nil {
			name := validation.NormalizeFullName(*req.FullName)
			if name == "" {
				apperrors.WriteBadRequest(w, r, "full_name must not be blank")
				return
			}
			update.FullName = &name
		}
		if req.PhoneE164 != nil {
			phone, err := validation.NormalizePhoneE164(*req.PhoneE164)
			if err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			if phone == "" {
				apperrors.WriteBadRequest(w, r, "phone_e164 must not be blank")
				return
			}
			update.PhoneE164 = &phone
		}
		if req.Country != nil {
			country, err := validation.NormalizeCountry(*req.Country)
			if err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			if country == "" {
				apperrors.WriteBadRequest(w, r, "country must not be blank")
				return
			}
			update.Country = &country
		}

		service := NewService(pool, cfg.MagicCodeTTLMin)
		user, err := service.UpdateProfile(ctx, userID, update)
		if err != nil {
			switch {
			case errors.Is(err, ErrNoProfileFields):
				apperrors.WriteBadRequest(w, r, "No profile fields provided")
			case errors.Is(err, ErrUserNotFound):
				apperrors.WriteNotFound(w, r, "User not found")
			default:
				log.Error().Err(err).Msg("Failed to update profile")
				apperrors.WriteInternalError(w, r, "Failed to update profile")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, profileBody(user))
	}
}
