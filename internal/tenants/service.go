package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/rbac"
	"github.com/postika/postika/internal/tier"
)

var (
	// ErrTenantNotFound is returned when a tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrNotMember is returned when the user has no active membership in
	// the tenant.
	ErrNotMember = errors.New("user is not a member of this tenant")

	// ErrTenantLimitReached is returned when the user already owns a tenant.
	ErrTenantLimitReached = errors.New("tenant limit reached")

	// ErrMemberNotFound is returned when the target membership is absent.
	ErrMemberNotFound = errors.New("member not found")

	// ErrCannotModifySelf is returned when an actor tries to deactivate
	// their own membership.
	ErrCannotModifySelf = errors.New("cannot deactivate your own membership")

	// ErrOwnerChangeForbidden is returned when a non-OWNER touches an OWNER
	// membership.
	ErrOwnerChangeForbidden = errors.New("only an owner may modify an owner")

	// ErrLastOwner is returned when a change would leave the tenant with no
	// active owner.
	ErrLastOwner = errors.New("tenant must keep at least one active owner")

	// ErrInvalidMemberRole is returned for roles outside the tenant set.
	ErrInvalidMemberRole = errors.New("invalid member role")
)

// OwnedTenantLimit is the number of tenants a user may own.
const OwnedTenantLimit = 1

// Service provides tenant and membership operations.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// GetByID loads a tenant.
func (s *Service) GetByID(ctx context.Context, tenantID uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, tier, subscription_status, subscription_tier, trial_ends_at,
		       salesperson_profile_id, is_active, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(
		&t.ID, &t.Name, &t.Tier, &t.SubscriptionStatus, &t.SubscriptionTier, &t.TrialEndsAt,
		&t.SalespersonProfileID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// EffectiveTier resolves the tenant's enforcement tier from its subscription
// fields.
func (t *Tenant) EffectiveTier(now time.Time) string {
	sub := tier.Subscription{TrialEndsAt: t.TrialEndsAt}
	if t.SubscriptionStatus != nil {
		sub.Status = *t.SubscriptionStatus
	}
	if t.SubscriptionTier != nil {
		sub.Tier = *t.SubscriptionTier
	}
	return tier.ResolveEffective(t.Tier, sub, now)
}

// CreateParams carries the typed onboarding fields of tenant creation.
type CreateParams struct {
	Name                 string
	OwnerUserID          uuid.UUID
	NotificationsOptIn   *bool
	ReferralCode         string
	SalespersonProfileID *uuid.UUID
}

// CreateWithOwner creates a tenant and its OWNER membership in one
// transaction. A user may own at most one tenant.
func (s *Service) CreateWithOwner(ctx context.Context, params CreateParams) (*Tenant, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var owned int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tenant_memberships
		WHERE user_id = $1 AND role = $2 AND is_active
	`, params.OwnerUserID, rbac.RoleOwner).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("failed to count owned tenants: %w", err)
	}
	if owned >= OwnedTenantLimit {
		return nil, ErrTenantLimitReached
	}

	var t Tenant
	err = tx.QueryRow(ctx, `
		INSERT INTO tenants (name, tier, salesperson_profile_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, tier, subscription_status, subscription_tier, trial_ends_at,
		          salesperson_profile_id, is_active, created_at, updated_at
	`, params.Name, tier.Sungura, params.SalespersonProfileID).Scan(
		&t.ID, &t.Name, &t.Tier, &t.SubscriptionStatus, &t.SubscriptionTier, &t.TrialEndsAt,
		&t.SalespersonProfileID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	var referral *string
	if params.ReferralCode != "" {
		referral = &params.ReferralCode
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenant_memberships (
		  tenant_id, user_id, role, accepted_terms, notifications_opt_in, referral_code
		)
		VALUES ($1, $2, $3, TRUE, $4, $5)
	`, t.ID, params.OwnerUserID, rbac.RoleOwner, params.NotificationsOptIn, referral)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &t, nil
}

// ListForUser returns tenants where the user holds an active membership.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]TenantWithRole, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.tier, t.subscription_status, t.subscription_tier, t.trial_ends_at,
		       t.salesperson_profile_id, t.is_active, t.created_at, t.updated_at, m.role
		FROM tenants t
		INNER JOIN tenant_memberships m ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND m.is_active
		ORDER BY t.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []TenantWithRole
	for rows.Next() {
		var t TenantWithRole
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Tier, &t.SubscriptionStatus, &t.SubscriptionTier, &t.TrialEndsAt,
			&t.SalespersonProfileID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &t.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant rows: %w", err)
	}

	return out, nil
}

// GetMembership returns the membership row for (tenant, user), active or not.
func (s *Service) GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*Membership, error) {
	var m Membership
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, role, permissions, accepted_terms,
		       notifications_opt_in, is_active, created_at, updated_at
		FROM tenant_memberships
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(
		&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.Permissions, &m.AcceptedTerms,
		&m.NotificationsOptIn, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}
