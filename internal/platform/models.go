// Package platform implements platform-level memberships (operator staff and
// salespeople), their invitation workflow, and salesperson administration.
package platform

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Platform roles. A user holds at most one platform membership.
const (
	RoleSuperAdmin  = "SUPER_ADMIN"
	RoleStaff       = "STAFF"
	RoleSalesperson = "SALESPERSON"
)

// Invitee types accepted by platform invitations.
const (
	InviteeStaff       = "STAFF"
	InviteeSalesperson = "SALESPERSON"
)

// Platform permission checkboxes. SUPER_ADMIN implicitly holds all of them.
const (
	PermInviteStaff             = "INVITE_STAFF"
	PermInviteSalespeople       = "INVITE_SALESPEOPLE"
	PermDeletePlatformUsers     = "DELETE_PLATFORM_USERS"
	PermAssignSalesPayments     = "ASSIGN_SALES_PAYMENTS"
	PermViewSalesDashboardAdmin = "VIEW_SALES_DASHBOARD_ADMIN"
)

var knownPermissions = map[string]bool{
	PermInviteStaff:             true,
	PermInviteSalespeople:       true,
	PermDeletePlatformUsers:     true,
	PermAssignSalesPayments:     true,
	PermViewSalesDashboardAdmin: true,
}

var (
	// ErrTermsNotAccepted is returned when accept_tos is not true.
	ErrTermsNotAccepted = errors.New("accept_tos must be true")

	// ErrTokenRequired is returned for an empty token.
	ErrTokenRequired = errors.New("token is required")

	// ErrNotPlatformMember is returned when the user has no active platform
	// membership.
	ErrNotPlatformMember = errors.New("not a platform member")

	// ErrPermissionDenied is returned when the membership lacks a required
	// permission.
	ErrPermissionDenied = errors.New("insufficient platform permissions")

	// ErrInvalidInviteeType is returned for invitee types outside
	// {STAFF, SALESPERSON}.
	ErrInvalidInviteeType = errors.New("invitee_type must be STAFF or SALESPERSON")

	// ErrUnknownPermission is returned when an invitation carries an
	// unrecognized permission key.
	ErrUnknownPermission = errors.New("unknown platform permission")

	// ErrDuplicatePending is returned when a pending platform invitation
	// already exists for the email.
	ErrDuplicatePending = errors.New("a pending invitation for this email already exists")

	// ErrInviteNotFound is returned when no invitation matches the token.
	ErrInviteNotFound = errors.New("platform invitation not found")

	// ErrAlreadyAccepted is returned for a consumed token.
	ErrAlreadyAccepted = errors.New("platform invitation already accepted")

	// ErrInviteExpired is returned past the invitation expiry.
	ErrInviteExpired = errors.New("platform invitation expired")

	// ErrEmailMismatch is returned when the acting user's email differs
	// from the invited address.
	ErrEmailMismatch = errors.New("invitation email does not match your account")
)

// Membership is a platform membership row, unique per user.
type Membership struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	Role               string    `db:"role" json:"role"`
	Permissions        []string  `db:"permissions" json:"permissions"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	AcceptedTerms      bool      `db:"accepted_terms" json:"accepted_terms"`
	NotificationsOptIn bool      `db:"notifications_opt_in" json:"notifications_opt_in"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// HasPermission reports whether the membership grants a permission key.
// SUPER_ADMIN overrides the checkbox list.
func (m *Membership) HasPermission(perm string) bool {
	if !m.IsActive {
		return false
	}
	if m.Role == RoleSuperAdmin {
		return true
	}
	for _, p := range m.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Invitation is a platform invitation row. Only the token hash is stored.
type Invitation struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	InviteeType      string     `db:"invitee_type" json:"invitee_type"`
	Role             string     `db:"role" json:"role"`
	Permissions      []string   `db:"permissions" json:"permissions"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt       *time.Time `db:"accepted_at" json:"accepted_at"`
	AcceptedByUserID *uuid.UUID `db:"accepted_by_user_id" json:"accepted_by_user_id"`
	CreatedByUserID  *uuid.UUID `db:"created_by_user_id" json:"created_by_user_id"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
