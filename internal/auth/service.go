package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrInvalidCode is returned when the submitted code does not match.
	ErrInvalidCode = errors.New("invalid code")

	// ErrCodeExpired is returned when the stored code is past its TTL.
	ErrCodeExpired = errors.New("code expired")

	// ErrUserNotFound is returned when no user exists for an id or email.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserInactive is returned when a deactivated user tries to sign in.
	ErrUserInactive = errors.New("user is deactivated")

	// ErrNoProfileFields is returned when a profile patch carries nothing
	// recognizable.
	ErrNoProfileFields = errors.New("no profile fields provided")
)

// Service provides passwordless identity operations.
type Service struct {
	pool    *pgxpool.Pool
	codeTTL time.Duration
}

// NewService creates an auth service. codeTTLMinutes bounds magic-code
// validity.
func NewService(pool *pgxpool.Pool, codeTTLMinutes int) *Service {
	return &Service{pool: pool, codeTTL: time.Duration(codeTTLMinutes) * time.Minute}
}

// RequestCode upserts the user for the (already normalized) email, stores a
// fresh hashed magic code, and returns the bare code for delivery. Prior
// codes for the same user are overwritten.
func (s *Service) RequestCode(ctx context.Context, email string) (string, error) {
	code, err := GenerateMagicCode()
	if err != nil {
		return "", err
	}
	hash, err := HashMagicCode(code)
	if err != nil {
		return "", fmt.Errorf("failed to hash magic code: %w", err)
	}

	expiresAt := time.Now().UTC().Add(s.codeTTL)

	var isActive bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (email, magic_code_hash, magic_code_expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET magic_code_hash = EXCLUDED.magic_code_hash,
		    magic_code_expires_at = EXCLUDED.magic_code_expires_at,
		    updated_at = NOW()
		RETURNING is_active
	`, email, hash, expiresAt).Scan(&isActive)
	if err != nil {
		return "", fmt.Errorf("failed to upsert user: %w", err)
	}
	if !isActive {
		return "", ErrUserInactive
	}

	return code, nil
}

// VerifyCode checks a submitted code against the stored hash and consumes it.
// The row lock serializes concurrent verify attempts so a code cannot be
// redeemed twice.
func (s *Service) VerifyCode(ctx context.Context, email, code string) (*User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var user User
	err = tx.QueryRow(ctx, `
		SELECT id, email, magic_code_hash, magic_code_expires_at,
		       full_name, phone_e164, country, is_active, created_at, updated_at
		FROM users
		WHERE email = $1
		FOR UPDATE
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.MagicCodeHash,
		&user.MagicCodeExpiresAt,
		&user.FullName,
		&user.PhoneE164,
		&user.Country,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if user.MagicCodeHash == nil || user.MagicCodeExpiresAt == nil {
		return nil, ErrInvalidCode
	}
	if !user.MagicCodeExpiresAt.After(time.Now().UTC()) {
		return nil, ErrCodeExpired
	}
	if VerifyMagicCode(*user.MagicCodeHash, code) != nil {
		return nil, ErrInvalidCode
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET magic_code_hash = NULL, magic_code_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume magic code: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	user.MagicCodeHash = nil
	user.MagicCodeExpiresAt = nil
	return &user, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, full_name, phone_e164, country, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PhoneE164,
		&user.Country,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail loads a user by normalized email.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, full_name, phone_e164, country, is_active, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PhoneE164,
		&user.Country,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// ProfileUpdate carries the optional profile fields of a PATCH. Nil means
// "leave unchanged"; values must already be normalized by the caller.
type ProfileUpdate struct {
	FullName  *string
	PhoneE164 *string
	Country   *string
}

// UpdateProfile applies a partial profile update and returns the fresh row.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*User, error) {
	if update.FullName == nil && update.PhoneE164 == nil && update.Country == nil {
		return nil, ErrNoProfileFields
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
		    phone_e164 = COALESCE($3, phone_e164),
		    country = COALESCE($4, country),
		    updated_at = NOW()
		WHERE id = $1
	`, userID, update.FullName, update.PhoneE164, update.Country)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}

	return s.GetUser(ctx, userID)
}

// PurgeExpiredCodes clears magic-code fields past their TTL. Called by the
// cron sweeper.
func (s *Service) PurgeExpiredCodes(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET magic_code_hash = NULL, magic_code_expires_at = NULL
		WHERE magic_code_expires_at IS NOT NULL
		  AND magic_code_expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
