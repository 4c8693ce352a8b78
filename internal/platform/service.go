package platform

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
	"github.com/postika/postika/internal/sales"
)

// Service provides platform membership and invitation operations.
type Service struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewService creates a platform service. ttlDays bounds invitation validity.
func NewService(pool *pgxpool.Pool, ttlDays int) *Service {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	return &Service{pool: pool, ttl: time.Duration(ttlDays) * 24 * time.Hour}
}

// GetMembership returns the platform membership for a user, active or not.
func (s *Service) GetMembership(ctx context.Context, userID uuid.UUID) (*Membership, error) {
	var m Membership
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, role, permissions, is_active, accepted_terms, notifications_opt_in, created_at
		FROM platform_memberships
		WHERE user_id = $1
	`, userID).Scan(
		&m.ID, &m.UserID, &m.Role, &m.Permissions, &m.IsActive,
		&m.AcceptedTerms, &m.NotificationsOptIn, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotPlatformMember
		}
		return nil, fmt.Errorf("failed to get platform membership: %w", err)
	}
	return &m, nil
}

// RequireActiveMembership loads the user's platform membership and rejects
// inactive rows.
func (s *Service) RequireActiveMembership(ctx context.Context, userID uuid.UUID) (*Membership, error) {
	m, err := s.GetMembership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, ErrNotPlatformMember
	}
	return m, nil
}

// CreateInviteParams describes a platform invitation to create.
type CreateInviteParams struct {
	Email       string
	InviteeType string
	Permissions []string
	ActorUserID uuid.UUID
}

// CreateInvite creates a pending platform invitation. Authorization:
// SUPER_ADMIN invites anyone; STAFF with INVITE_SALESPEOPLE invites
// salespeople; nobody else invites. Salesperson invitations carry no
// permission checkboxes.
func (s *Service) CreateInvite(ctx context.Context, actor *Membership, params CreateInviteParams) (*Invitation, string, error) {
	inviteeType := strings.ToUpper(strings.TrimSpace(params.InviteeType))
	if inviteeType != InviteeStaff && inviteeType != InviteeSalesperson {
		return nil, "", ErrInvalidInviteeType
	}

	switch inviteeType {
	case InviteeStaff:
		if actor.Role != RoleSuperAdmin {
			return nil, "", ErrPermissionDenied
		}
	case InviteeSalesperson:
		if !actor.HasPermission(PermInviteSalespeople) {
			return nil, "", ErrPermissionDenied
		}
	}

	permissions := []string{}
	if inviteeType == InviteeStaff {
		for _, p := range params.Permissions {
			p = strings.ToUpper(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			if !knownPermissions[p] {
				return nil, "", fmt.Errorf("%w: %s", ErrUnknownPermission, p)
			}
			permissions = append(permissions, p)
		}
	}

	role := RoleStaff
	if inviteeType == InviteeSalesperson {
		role = RoleSalesperson
	}

	for attempt := 0; attempt < 3; attempt++ {
		token, tokenHash, err := GenerateToken()
		if err != nil {
			return nil, "", err
		}

		expiresAt := time.Now().UTC().Add(s.ttl)

		var inv Invitation
		err = s.pool.QueryRow(ctx, `
			INSERT INTO platform_invitations (
			  email, invitee_type, role, permissions, token_hash, expires_at, created_by_user_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, email, invitee_type, role, permissions, expires_at,
			          accepted_at, accepted_by_user_id, created_by_user_id, created_at
		`, params.Email, inviteeType, role, permissions, tokenHash, expiresAt, params.ActorUserID).Scan(
			&inv.ID, &inv.Email, &inv.InviteeType, &inv.Role, &inv.Permissions, &inv.ExpiresAt,
			&inv.AcceptedAt, &inv.AcceptedByUserID, &inv.CreatedByUserID, &inv.CreatedAt,
		)
		if err == nil {
			return &inv, token, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "uq_platform_invitations_pending_email" {
				return nil, "", ErrDuplicatePending
			}
			// Token hash collision (extremely unlikely); retry.
			continue
		}
		return nil, "", fmt.Errorf("failed to create platform invitation: %w", err)
	}

	return nil, "", fmt.Errorf("failed to create platform invitation: token collision retry exhausted")
}

// ListInvites returns pending platform invitations, newest first.
func (s *Service) ListInvites(ctx context.Context) ([]Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, invitee_type, role, permissions, expires_at,
		       accepted_at, accepted_by_user_id, created_by_user_id, created_at
		FROM platform_invitations
		WHERE accepted_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform invitations: %w", err)
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(
			&inv.ID, &inv.Email, &inv.InviteeType, &inv.Role, &inv.Permissions, &inv.ExpiresAt,
			&inv.AcceptedAt, &inv.AcceptedByUserID, &inv.CreatedByUserID, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan platform invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform invitations: %w", err)
	}

	return out, nil
}

// AcceptParams are the inputs of one platform acceptance attempt.
type AcceptParams struct {
	Token               string
	ActorUserID         uuid.UUID
	AcceptTos           bool
	AcceptNotifications bool
}

// AcceptResult is the platform acceptance output. Profile is set when the
// accepted role is SALESPERSON.
type AcceptResult struct {
	InviteID   uuid.UUID
	UserID     uuid.UUID
	Role       string
	Membership *Membership
	Profile    *sales.Profile
}

// Accept consumes a platform invitation token and upserts the platform
// membership. The same ordered validation as the tenant engine applies;
// platform roles carry no seat caps. SALESPERSON acceptance additionally
// creates a salesperson profile with a unique referral code, in the same
// transaction.
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

	var inv Invitation
	err = tx.QueryRow(ctx, `
		SELECT id, email, invitee_type, role, permissions, expires_at,
		       accepted_at, accepted_by_user_id, created_by_user_id, created_at
		FROM platform_invitations
		WHERE token_hash = $1
		FOR UPDATE
	`, HashToken(token)).Scan(
		&inv.ID, &inv.Email, &inv.InviteeType, &inv.Role, &inv.Permissions, &inv.ExpiresAt,
		&inv.AcceptedAt, &inv.AcceptedByUserID, &inv.CreatedByUserID, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to load platform invitation: %w", err)
	}

	if inv.AcceptedAt != nil {
		return nil, ErrAlreadyAccepted
	}
	if !inv.ExpiresAt.After(time.Now().UTC()) {
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

	permissions := inv.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	var m Membership
	err = tx.QueryRow(ctx, `
		INSERT INTO platform_memberships (
		  user_id, role, permissions, is_active, accepted_terms, notifications_opt_in
		)
		VALUES ($1, $2, $3, TRUE, TRUE, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role,
		    permissions = EXCLUDED.permissions,
		    is_active = TRUE,
		    accepted_terms = TRUE,
		    notifications_opt_in = EXCLUDED.notifications_opt_in
		RETURNING id, user_id, role, permissions, is_active, accepted_terms, notifications_opt_in, created_at
	`, params.ActorUserID, inv.Role, permissions, params.AcceptNotifications).Scan(
		&m.ID, &m.UserID, &m.Role, &m.Permissions, &m.IsActive,
		&m.AcceptedTerms, &m.NotificationsOptIn, &m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert platform membership: %w", err)
	}

	result := &AcceptResult{
		InviteID:   inv.ID,
		UserID:     params.ActorUserID,
		Role:       inv.Role,
		Membership: &m,
	}

	if inv.Role == RoleSalesperson {
		profile, err := sales.CreateProfile(ctx, tx, params.ActorUserID)
		if err != nil {
			if errors.Is(err, sales.ErrProfileExists) {
				// Reactivate the existing profile instead.
				_, err = tx.Exec(ctx, `
					UPDATE salesperson_profiles SET is_active = TRUE WHERE user_id = $1
				`, params.ActorUserID)
				if err != nil {
					return nil, fmt.Errorf("failed to reactivate salesperson profile: %w", err)
				}
			} else {
				return nil, err
			}
		} else {
			result.Profile = profile
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE platform_invitations
		SET accepted_at = NOW(), accepted_by_user_id = $2
		WHERE id = $1 AND accepted_at IS NULL
	`, inv.ID, params.ActorUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark platform invitation accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyAccepted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// DeactivateUser deactivates a user's platform membership and any
// salesperson profile. Rows are never deleted.
func (s *Service) DeactivateUser(ctx context.Context, targetUserID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE platform_memberships SET is_active = FALSE WHERE user_id = $1
	`, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to deactivate platform membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPlatformMember
	}

	if err := sales.DeactivateProfile(ctx, tx, targetUserID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GrantSuperAdmin upserts an active SUPER_ADMIN membership for the user with
// the given email. Bootstrap path used by the admin CLI.
func GrantSuperAdmin(ctx context.Context, pool *pgxpool.Pool, email string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("no user found with email %q", email)
		}
		return uuid.Nil, fmt.Errorf("failed to look up user: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO platform_memberships (user_id, role, permissions, is_active, accepted_terms)
		VALUES ($1, $2, '{}', TRUE, TRUE)
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role, is_active = TRUE
	`, userID, RoleSuperAdmin)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to grant super admin: %w", err)
	}

	return userID, nil
}
