// Package invites implements tenant invitations and the acceptance engine
// that enforces tier seat limits.
package invites

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postika/postika/internal/rbac"
)

var (
	// ErrTermsNotAccepted is returned when accept_tos is not true.
	ErrTermsNotAccepted = errors.New("accept_tos must be true")

	// ErrTokenRequired is returned for an empty token.
	ErrTokenRequired = errors.New("token is required")

	// ErrInviteNotFound is returned when no pending invitation matches the
	// token. Revoked invitations are reported the same way.
	ErrInviteNotFound = errors.New("invitation not found")

	// ErrAlreadyAccepted is returned when the token was consumed before,
	// by anyone including the acting user. Tokens are strictly single-use.
	ErrAlreadyAccepted = errors.New("invitation already accepted")

	// ErrInviteExpired is returned when the invitation's expiry has passed.
	ErrInviteExpired = errors.New("invitation expired")

	// ErrEmailMismatch is returned when the acting user's email differs
	// from the invited address.
	ErrEmailMismatch = errors.New("invitation email does not match your account")

	// ErrInvalidInviteRole is returned when a stored or requested role is
	// outside {ADMIN, STAFF}.
	ErrInvalidInviteRole = errors.New("invitation role must be ADMIN or STAFF")

	// ErrAlreadyMember is returned when creating an invitation for a user
	// who is already an active member.
	ErrAlreadyMember = errors.New("user is already an active member")

	// ErrDuplicatePending is returned when a pending invitation for the
	// same email already exists.
	ErrDuplicatePending = errors.New("a pending invitation for this email already exists")

	// ErrConflict is returned when a database constraint trips during
	// acceptance. Callers must resubmit; the engine never retries.
	ErrConflict = errors.New("invitation conflict")
)

// SeatLimitError reports a rejected acceptance because the tenant's tier cap
// for the invited role is full.
type SeatLimitError struct {
	Role        string
	Tier        string
	Limit       int
	ActiveCount int
}

func (e *SeatLimitError) Error() string {
	return fmt.Sprintf("seat limit exceeded: tier %s allows %d active %s members, found %d",
		e.Tier, e.Limit, e.Role, e.ActiveCount)
}

// Invitation is a tenant invitation row. Only the token hash is stored.
type Invitation struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	TenantID         uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Email            string     `db:"email" json:"email"`
	Role             string     `db:"role" json:"role"`
	Permissions      []string   `db:"permissions" json:"permissions"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt       *time.Time `db:"accepted_at" json:"accepted_at"`
	AcceptedByUserID *uuid.UUID `db:"accepted_by_user_id" json:"accepted_by_user_id"`
	RevokedAt        *time.Time `db:"revoked_at" json:"-"`
	CreatedByUserID  uuid.UUID  `db:"created_by_user_id" json:"created_by_user_id"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// ListItem is one row of the invitation listing.
type ListItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Role           string    `db:"role" json:"role"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	CreatedByEmail string    `db:"created_by_email" json:"created_by_email"`
}

// AcceptResult is the engine's success output.
type AcceptResult struct {
	InviteID uuid.UUID
	TenantID uuid.UUID
	UserID   uuid.UUID
	Role     string
}

// normalizeInviteRole maps a label onto {ADMIN, STAFF}.
func normalizeInviteRole(role string) (string, error) {
	switch rbac.NormalizeRole(role) {
	case rbac.RoleAdmin:
		return rbac.RoleAdmin, nil
	case rbac.RoleStaff:
		return rbac.RoleStaff, nil
	default:
		return "", ErrInvalidInviteRole
	}
}
