package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrProfileNotFound is returned when no active salesperson profile
	// matches a user or referral code.
	ErrProfileNotFound = errors.New("salesperson profile not found")

	// ErrProfileExists is returned when the user already has a profile.
	ErrProfileExists = errors.New("salesperson profile already exists")

	// ErrCodeAllocation is returned when referral-code generation keeps
	// colliding. Effectively unreachable with a 36^6 space.
	ErrCodeAllocation = errors.New("failed to allocate a unique referral code")
)

const codeAllocationAttempts = 5

// Service provides salesperson and ledger operations.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ResolveByReferralCode returns the active profile owning a referral code.
func (s *Service) ResolveByReferralCode(ctx context.Context, code string) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, referral_code, is_active,
		       last_payment_amount_cents, last_payment_phone, last_payment_assigned_at, created_at
		FROM salesperson_profiles
		WHERE referral_code = $1 AND is_active
	`, code).Scan(
		&p.ID, &p.UserID, &p.ReferralCode, &p.IsActive,
		&p.LastPaymentAmountCents, &p.LastPaymentPhone, &p.LastPaymentAssignedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}
	return &p, nil
}

// GetProfileByUserID returns the profile for a user, active or not.
func (s *Service) GetProfileByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, referral_code, is_active,
		       last_payment_amount_cents, last_payment_phone, last_payment_assigned_at, created_at
		FROM salesperson_profiles
		WHERE user_id = $1
	`, userID).Scan(
		&p.ID, &p.UserID, &p.ReferralCode, &p.IsActive,
		&p.LastPaymentAmountCents, &p.LastPaymentPhone, &p.LastPaymentAssignedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get salesperson profile: %w", err)
	}
	return &p, nil
}

// CreateProfile creates a salesperson profile with a freshly allocated
// referral code. Works against any pgx querier so platform-invitation
// acceptance can run it inside its own transaction.
func CreateProfile(ctx context.Context, q querier, userID uuid.UUID) (*Profile, error) {
	for attempt := 0; attempt < codeAllocationAttempts; attempt++ {
		code, err := GenerateReferralCode()
		if err != nil {
			return nil, err
		}

		var p Profile
		err = q.QueryRow(ctx, `
			INSERT INTO salesperson_profiles (user_id, referral_code)
			VALUES ($1, $2)
			RETURNING id, user_id, referral_code, is_active,
			          last_payment_amount_cents, last_payment_phone, last_payment_assigned_at, created_at
		`, userID, code).Scan(
			&p.ID, &p.UserID, &p.ReferralCode, &p.IsActive,
			&p.LastPaymentAmountCents, &p.LastPaymentPhone, &p.LastPaymentAssignedAt, &p.CreatedAt,
		)
		if err == nil {
			return &p, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "salesperson_profiles_user_id_key" {
				return nil, ErrProfileExists
			}
			// Referral code collision; try another.
			continue
		}
		return nil, fmt.Errorf("failed to create salesperson profile: %w", err)
	}

	return nil, ErrCodeAllocation
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// execer is the Exec subset shared by pools and transactions.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateProfileForUser creates a profile outside of any wider transaction.
func (s *Service) CreateProfileForUser(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return CreateProfile(ctx, s.pool, userID)
}

// DeactivateProfile deactivates a salesperson profile if one exists. Works
// against any pgx execer so platform user deactivation can run it inside its
// own transaction.
func DeactivateProfile(ctx context.Context, q execer, userID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE salesperson_profiles
		SET is_active = FALSE
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate salesperson profile: %w", err)
	}
	return nil
}

// ListProfiles pages through all salesperson profiles, newest first, and
// returns the total row count for the admin listing.
func (s *Service) ListProfiles(ctx context.Context, limit, offset int) ([]Profile, int, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM salesperson_profiles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count salesperson profiles: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, referral_code, is_active,
		       last_payment_amount_cents, last_payment_phone, last_payment_assigned_at, created_at
		FROM salesperson_profiles
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list salesperson profiles: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		var p Profile
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.ReferralCode, &p.IsActive,
			&p.LastPaymentAmountCents, &p.LastPaymentPhone, &p.LastPaymentAssignedAt, &p.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan salesperson profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating salesperson profiles: %w", err)
	}

	return profiles, total, nil
}

// UpdateProfileParams carries the patchable profile fields. Nil means leave
// unchanged.
type UpdateProfileParams struct {
	IsActive         *bool
	LastPaymentPhone *string
}

// UpdateProfile patches a profile by its id.
func (s *Service) UpdateProfile(ctx context.Context, profileID uuid.UUID, params UpdateProfileParams) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		UPDATE salesperson_profiles
		SET is_active = COALESCE($2, is_active),
		    last_payment_phone = COALESCE($3, last_payment_phone)
		WHERE id = $1
		RETURNING id, user_id, referral_code, is_active,
		          last_payment_amount_cents, last_payment_phone, last_payment_assigned_at, created_at
	`, profileID, params.IsActive, params.LastPaymentPhone).Scan(
		&p.ID, &p.UserID, &p.ReferralCode, &p.IsActive,
		&p.LastPaymentAmountCents, &p.LastPaymentPhone, &p.LastPaymentAssignedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update salesperson profile: %w", err)
	}
	return &p, nil
}

// RotateReferralCode replaces a profile's referral code with a freshly
// allocated one. The old code stops resolving immediately.
func (s *Service) RotateReferralCode(ctx context.Context, profileID uuid.UUID) (*Profile, error) {
	for attempt := 0; attempt < codeAllocationAttempts; attempt++ {
		code, err := GenerateReferralCode()
		if err != nil {
			return nil, err
		}

		var p Profile
		err = s.pool.QueryRow(ctx, `
			UPDATE salesperson_profiles
			SET referral_code = $2
			WHERE id = $1
			RETURNING id, user_id, referral_code, is_active,
			          last_payment_amount_cents, last_payment_phone, last_payment_assigned_at, created_at
		`, profileID, code).Scan(
			&p.ID, &p.UserID, &p.ReferralCode, &p.IsActive,
			&p.LastPaymentAmountCents, &p.LastPaymentPhone, &p.LastPaymentAssignedAt, &p.CreatedAt,
		)
		if err == nil {
			return &p, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Referral code collision; try another.
			continue
		}
		return nil, fmt.Errorf("failed to rotate referral code: %w", err)
	}

	return nil, ErrCodeAllocation
}

// AssignPayment records the latest payout made to a salesperson. It records
// intent only; money movement happens out of band.
func (s *Service) AssignPayment(ctx context.Context, userID uuid.UUID, amountCents int64, phone string) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		UPDATE salesperson_profiles
		SET last_payment_amount_cents = $2,
		    last_payment_phone = $3,
		    last_payment_assigned_at = NOW()
		WHERE user_id = $1
		RETURNING id, user_id, referral_code, is_active,
		          last_payment_amount_cents, last_payment_phone, last_payment_assigned_at, created_at
	`, userID, amountCents, phone).Scan(
		&p.ID, &p.UserID, &p.ReferralCode, &p.IsActive,
		&p.LastPaymentAmountCents, &p.LastPaymentPhone, &p.LastPaymentAssignedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to assign payment: %w", err)
	}
	return &p, nil
}

// RecordEarningParams describes one ledger entry to append.
type RecordEarningParams struct {
	SalespersonProfileID uuid.UUID
	TenantID             *uuid.UUID
	EventType            string
	Currency             string
	GrossAmountCents     int64
	Source               string
	OccurredAt           time.Time
	Meta                 map[string]any
}

// RecordEarning appends one immutable ledger row, computing the commission
// from the gross amount.
func (s *Service) RecordEarning(ctx context.Context, params RecordEarningParams) (*EarningEvent, error) {
	if params.Currency == "" {
		params.Currency = DefaultCurrency
	}
	if params.OccurredAt.IsZero() {
		params.OccurredAt = time.Now().UTC()
	}

	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal earning meta: %w", err)
		}
		metaJSON = b
	}

	commission := CommissionCents(params.GrossAmountCents)

	ev := EarningEvent{
		SalespersonProfileID:  params.SalespersonProfileID,
		TenantID:              params.TenantID,
		EventType:             params.EventType,
		Currency:              params.Currency,
		GrossAmountCents:      params.GrossAmountCents,
		CommissionAmountCents: commission,
		Source:                params.Source,
		OccurredAt:            params.OccurredAt,
		Meta:                  params.Meta,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO salesperson_earning_events (
		  salesperson_profile_id, tenant_id, event_type, currency,
		  gross_amount_cents, commission_amount_cents, source, occurred_at, meta
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`,
		params.SalespersonProfileID,
		toNullUUID(params.TenantID),
		params.EventType,
		params.Currency,
		params.GrossAmountCents,
		commission,
		params.Source,
		params.OccurredAt,
		metaJSON,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record earning event: %w", err)
	}

	return &ev, nil
}

// ListEarnings pages through a salesperson's ledger, newest first.
func (s *Service) ListEarnings(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]EarningEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, salesperson_profile_id, tenant_id, event_type, currency,
		       gross_amount_cents, commission_amount_cents, source, occurred_at, meta, created_at
		FROM salesperson_earning_events
		WHERE salesperson_profile_id = $1
		ORDER BY occurred_at DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, profileID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}
	defer rows.Close()

	var events []EarningEvent
	for rows.Next() {
		var ev EarningEvent
		var tenantID uuid.NullUUID
		var metaRaw []byte
		if err := rows.Scan(
			&ev.ID, &ev.SalespersonProfileID, &tenantID, &ev.EventType, &ev.Currency,
			&ev.GrossAmountCents, &ev.CommissionAmountCents, &ev.Source, &ev.OccurredAt, &metaRaw, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan earning event: %w", err)
		}
		if tenantID.Valid {
			ev.TenantID = &tenantID.UUID
		}
		ev.Meta = map[string]any{}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &ev.Meta)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earning events: %w", err)
	}

	return events, nil
}

// GetStats aggregates the ledger for a salesperson.
func (s *Service) GetStats(ctx context.Context, profileID uuid.UUID) (*Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
		  COUNT(*),
		  COALESCE(SUM(commission_amount_cents), 0),
		  COALESCE(SUM(gross_amount_cents), 0),
		  COUNT(*) FILTER (WHERE occurred_at > NOW() - INTERVAL '30 days'),
		  COALESCE(SUM(commission_amount_cents) FILTER (WHERE occurred_at > NOW() - INTERVAL '30 days'), 0),
		  COUNT(DISTINCT tenant_id) FILTER (WHERE tenant_id IS NOT NULL)
		FROM salesperson_earning_events
		WHERE salesperson_profile_id = $1
	`, profileID).Scan(
		&stats.TotalEvents,
		&stats.TotalCommissionCents,
		&stats.TotalGrossCents,
		&stats.Last30DaysEvents,
		&stats.Last30DaysCommissionCents,
		&stats.ReferredTenants,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate earnings: %w", err)
	}
	return &stats, nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
