package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/postika/postika/internal/rbac"
)

var tenantRoles = map[string]bool{
	rbac.RoleOwner:   true,
	rbac.RoleAdmin:   true,
	rbac.RoleManager: true,
	rbac.RoleStaff:   true,
}

// ListMembers returns every membership of a tenant, active and inactive.
func (s *Service) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]MemberInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.user_id, u.email, u.full_name, m.role, m.permissions, m.is_active, m.created_at
		FROM tenant_memberships m
		INNER JOIN users u ON m.user_id = u.id
		WHERE m.tenant_id = $1
		ORDER BY m.created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []MemberInfo
	for rows.Next() {
		var m MemberInfo
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &m.Role, &m.Permissions, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// MemberUpdate describes a partial membership patch. Nil fields are left
// unchanged.
type MemberUpdate struct {
	Role        *string
	Permissions *[]string
	IsActive    *bool
}

// UpdateMember patches a member's role, extra permissions, or active flag.
// The target row is locked for the duration so the owner counting below
// cannot race with a concurrent patch. Guards:
//   - an actor cannot deactivate themself
//   - only an OWNER may change an OWNER's row or grant the OWNER role
//   - the last active OWNER can be neither demoted nor deactivated
func (s *Service) UpdateMember(ctx context.Context, tenantID, actorUserID, targetUserID uuid.UUID, actorRole string, update MemberUpdate) (*Membership, error) {
	if update.Role != nil {
		role := rbac.NormalizeRole(*update.Role)
		if !tenantRoles[role] {
			return nil, ErrInvalidMemberRole
		}
		update.Role = &role
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var m Membership
	err = tx.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, role, permissions, accepted_terms,
		       notifications_opt_in, is_active, created_at, updated_at
		FROM tenant_memberships
		WHERE tenant_id = $1 AND user_id = $2
		FOR UPDATE
	`, tenantID, targetUserID).Scan(
		&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.Permissions, &m.AcceptedTerms,
		&m.NotificationsOptIn, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	deactivating := update.IsActive != nil && !*update.IsActive && m.IsActive
	if deactivating && actorUserID == targetUserID {
		return nil, ErrCannotModifySelf
	}

	touchesOwner := m.Role == rbac.RoleOwner ||
		(update.Role != nil && *update.Role == rbac.RoleOwner)
	if touchesOwner && actorRole != rbac.RoleOwner {
		return nil, ErrOwnerChangeForbidden
	}

	demotingOwner := m.Role == rbac.RoleOwner && update.Role != nil && *update.Role != rbac.RoleOwner
	if m.Role == rbac.RoleOwner && m.IsActive && (demotingOwner || deactivating) {
		// Count other active owners under the lock already held on the
		// target row; the tenant row lock is not needed since every path
		// that mutates an OWNER row comes through here.
		var otherOwners int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM tenant_memberships
			WHERE tenant_id = $1 AND role = $2 AND is_active AND user_id <> $3
		`, tenantID, rbac.RoleOwner, targetUserID).Scan(&otherOwners)
		if err != nil {
			return nil, fmt.Errorf("failed to count owners: %w", err)
		}
		if otherOwners == 0 {
			return nil, ErrLastOwner
		}
	}

	if update.Role != nil {
		m.Role = *update.Role
	}
	if update.Permissions != nil {
		m.Permissions = *update.Permissions
		if m.Permissions == nil {
			m.Permissions = []string{}
		}
	}
	if update.IsActive != nil {
		m.IsActive = *update.IsActive
	}

	err = tx.QueryRow(ctx, `
		UPDATE tenant_memberships
		SET role = $3, permissions = $4, is_active = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2
		RETURNING updated_at
	`, tenantID, targetUserID, m.Role, m.Permissions, m.IsActive).Scan(&m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &m, nil
}
