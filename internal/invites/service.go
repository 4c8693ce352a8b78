package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/rbac"
	"github.com/postika/postika/internal/tier"
)

// Service provides invitation operations. The seat-cap table is fixed at
// construction; enforcement always consults the database under row locks.
type Service struct {
	pool   *pgxpool.Pool
	limits *tier.Limits
	ttl    time.Duration
}

// NewService creates an invitation service. ttlDays bounds invitation
// validity.
func NewService(pool *pgxpool.Pool, limits *tier.Limits, ttlDays int) *Service {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	return &Service{
		pool:   pool,
		limits: limits,
		ttl:    time.Duration(ttlDays) * 24 * time.Hour,
	}
}

// CreateInvite creates a pending invitation and returns it with the bare
// token. At most one pending invitation may exist per (tenant, email).
func (s *Service) CreateInvite(ctx context.Context, tenantID, actorUserID uuid.UUID, email, role string, permissions []string) (*Invitation, string, error) {
	normalizedRole, err := normalizeInviteRole(role)
	if err != nil {
		return nil, "", err
	}
	if permissions == nil {
		permissions = []string{}
	}

	var activeMember bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
		  SELECT 1
		  FROM tenant_memberships m
		  INNER JOIN users u ON u.id = m.user_id
		  WHERE m.tenant_id = $1 AND lower(u.email) = $2 AND m.is_active
		)
	`, tenantID, email).Scan(&activeMember)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check existing membership: %w", err)
	}
	if activeMember {
		return nil, "", ErrAlreadyMember
	}

	for attempt := 0; attempt < 3; attempt++ {
		token, tokenHash, err := GenerateToken()
		if err != nil {
			return nil, "", err
		}

		expiresAt := time.Now().UTC().Add(s.ttl)

		var inv Invitation
		err = s.pool.QueryRow(ctx, `
			INSERT INTO tenant_invitations (
			  tenant_id, email, role, permissions, token_hash, expires_at, created_by_user_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, tenant_id, email, role, permissions, expires_at,
			          accepted_at, accepted_by_user_id, revoked_at, created_by_user_id, created_at
		`, tenantID, email, normalizedRole, permissions, tokenHash, expiresAt, actorUserID).Scan(
			&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.Permissions, &inv.ExpiresAt,
			&inv.AcceptedAt, &inv.AcceptedByUserID, &inv.RevokedAt, &inv.CreatedByUserID, &inv.CreatedAt,
		)
		if err == nil {
			return &inv, token, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "uq_tenant_invitations_pending_email" {
				return nil, "", ErrDuplicatePending
			}
			// Token hash collision (extremely unlikely); retry.
			continue
		}
		return nil, "", fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil, "", fmt.Errorf("failed to create invitation: token collision retry exhausted")
}

// ListInvites returns pending invitations for a tenant, newest first.
func (s *Service) ListInvites(ctx context.Context, tenantID uuid.UUID) ([]ListItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.email, i.role, i.expires_at, i.created_at, u.email AS created_by_email
		FROM tenant_invitations i
		INNER JOIN users u ON u.id = i.created_by_user_id
		WHERE i.tenant_id = $1
		  AND i.accepted_at IS NULL
		  AND i.revoked_at IS NULL
		  AND i.expires_at > NOW()
		ORDER BY i.created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var item ListItem
		if err := rows.Scan(&item.ID, &item.Email, &item.Role, &item.ExpiresAt, &item.CreatedAt, &item.CreatedByEmail); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}

	return items, nil
}

// RevokeInvite marks a pending invitation revoked.
func (s *Service) RevokeInvite(ctx context.Context, tenantID, inviteID, actorUserID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenant_invitations
		SET revoked_at = NOW(), revoked_by_user_id = $3
		WHERE id = $1
		  AND tenant_id = $2
		  AND accepted_at IS NULL
		  AND revoked_at IS NULL
	`, inviteID, tenantID, actorUserID)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// AcceptParams are the inputs of one acceptance attempt.
type AcceptParams struct {
	Token               string
	ActorUserID         uuid.UUID
	AcceptTos           bool
	AcceptNotifications *bool
}

// Accept validates an invitation token and, holding row locks on the
// invitation and the tenant, enforces the tier seat cap before upserting the
// membership and consuming the token. The whole operation is one
// transaction: an abandoned request rolls back with no partial state.
//
// Validation order is fixed because each step maps to a distinct error:
// terms, token presence, lookup, prior acceptance, expiry, email match,
// role, then the seat cap.
func (s *Service) Accept(ctx context.Context, params AcceptParams) (*AcceptResult, error) {
	if !params.AcceptTos {
		return nil, ErrTermsNotAccepted
	}
	token := strings.TrimSpace(params.Token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	if !ValidateTokenFormat(token) {
		return nil, ErrInviteNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// The invitation row lock serializes concurrent accepts of the same
	// token; everything after this point re-checks state under the lock.
	var inv Invitation
	err = tx.QueryRow(ctx, `
		SELECT id, tenant_id, email, role, permissions, expires_at,
		       accepted_at, accepted_by_user_id, revoked_at, created_by_user_id, created_at
		FROM tenant_invitations
		WHERE token_hash = $1
		FOR UPDATE
	`, HashToken(token)).Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.Permissions, &inv.ExpiresAt,
		&inv.AcceptedAt, &inv.AcceptedByUserID, &inv.RevokedAt, &inv.CreatedByUserID, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}

	if inv.RevokedAt != nil {
		return nil, ErrInviteNotFound
	}
	if inv.AcceptedAt != nil {
		return nil, ErrAlreadyAccepted
	}

	now := time.Now().UTC()
	if !inv.ExpiresAt.After(now) {
		return nil, ErrInviteExpired
	}

	var actorEmail string
	err = tx.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, params.ActorUserID).Scan(&actorEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("acting user not found")
		}
		return nil, fmt.Errorf("failed to load acting user: %w", err)
	}
	if !strings.EqualFold(actorEmail, inv.Email) {
		return nil, ErrEmailMismatch
	}

	role, err := normalizeInviteRole(inv.Role)
	if err != nil {
		return nil, err
	}

	if err := s.enforceSeatCap(ctx, tx, inv.TenantID, params.ActorUserID, role, now); err != nil {
		return nil, err
	}

	// Lock any existing membership row before the upsert so a concurrent
	// member patch cannot interleave.
	var existingID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM tenant_memberships
		WHERE tenant_id = $1 AND user_id = $2
		FOR UPDATE
	`, inv.TenantID, params.ActorUserID).Scan(&existingID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to lock membership: %w", err)
	}

	permissions := inv.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	// Re-accepting overwrites role and grants in place: a STAFF member
	// accepting an ADMIN invitation is promoted, a deactivated member is
	// reactivated.
	_, err = tx.Exec(ctx, `
		INSERT INTO tenant_memberships (
		  tenant_id, user_id, role, permissions, accepted_terms, notifications_opt_in, is_active
		)
		VALUES ($1, $2, $3, $4, TRUE, $5, TRUE)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET role = EXCLUDED.role,
		    permissions = EXCLUDED.permissions,
		    accepted_terms = TRUE,
		    notifications_opt_in = EXCLUDED.notifications_opt_in,
		    is_active = TRUE,
		    updated_at = NOW()
	`, inv.TenantID, params.ActorUserID, role, permissions, params.AcceptNotifications)
	if err != nil {
		return nil, translateConflict(err, "failed to upsert membership")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE tenant_invitations
		SET accepted_at = NOW(), accepted_by_user_id = $2
		WHERE id = $1 AND accepted_at IS NULL
	`, inv.ID, params.ActorUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyAccepted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translateConflict(err, "failed to commit transaction")
	}

	return &AcceptResult{
		InviteID: inv.ID,
		TenantID: inv.TenantID,
		UserID:   params.ActorUserID,
		Role:     role,
	}, nil
}

// enforceSeatCap locks the tenant row and counts active memberships of the
// invited role, excluding the acting user. The exclusion keeps re-accepts by
// a user who already holds the role from blocking on their own seat. OWNER
// is never capped and never reaches here.
func (s *Service) enforceSeatCap(ctx context.Context, tx pgx.Tx, tenantID, actorUserID uuid.UUID, role string, now time.Time) error {
	var baseTier string
	var subStatus, subTier *string
	var trialEndsAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT tier, subscription_status, subscription_tier, trial_ends_at
		FROM tenants
		WHERE id = $1
		FOR UPDATE
	`, tenantID).Scan(&baseTier, &subStatus, &subTier, &trialEndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInviteNotFound
		}
		return fmt.Errorf("failed to lock tenant: %w", err)
	}

	sub := tier.Subscription{TrialEndsAt: trialEndsAt}
	if subStatus != nil {
		sub.Status = *subStatus
	}
	if subTier != nil {
		sub.Tier = *subTier
	}
	effectiveTier := tier.ResolveEffective(baseTier, sub, now)

	var seatCap int
	switch role {
	case rbac.RoleAdmin:
		seatCap = s.limits.AdminCap(effectiveTier)
	case rbac.RoleStaff:
		seatCap = s.limits.StaffCap(effectiveTier)
	default:
		return ErrInvalidInviteRole
	}

	var active int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tenant_memberships
		WHERE tenant_id = $1 AND role = $2 AND is_active AND user_id <> $3
	`, tenantID, role, actorUserID).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to count active members: %w", err)
	}

	if active >= seatCap {
		return &SeatLimitError{
			Role:        role,
			Tier:        effectiveTier,
			Limit:       seatCap,
			ActiveCount: active,
		}
	}

	return nil
}

// translateConflict maps unique-constraint violations to ErrConflict. The
// row locks are the concurrency guard; a constraint trip means a caller
// raced outside them and must resubmit.
func translateConflict(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return fmt.Errorf("%s: %w", msg, err)
}
