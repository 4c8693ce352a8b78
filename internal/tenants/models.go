// Package tenants implements tenant lifecycle and membership administration.
package tenants

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a customer organization row.
type Tenant struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	Tier                 string     `db:"tier" json:"tier"`
	SubscriptionStatus   *string    `db:"subscription_status" json:"subscription_status,omitempty"`
	SubscriptionTier     *string    `db:"subscription_tier" json:"subscription_tier,omitempty"`
	TrialEndsAt          *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	SalespersonProfileID *uuid.UUID `db:"salesperson_profile_id" json:"-"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Membership is a (tenant, user) role assignment. Rows are unique per pair
// and deactivated rather than deleted.
type Membership struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	TenantID           uuid.UUID `db:"tenant_id" json:"tenant_id"`
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	Role               string    `db:"role" json:"role"`
	Permissions        []string  `db:"permissions" json:"permissions"`
	AcceptedTerms      bool      `db:"accepted_terms" json:"accepted_terms"`
	NotificationsOptIn *bool     `db:"notifications_opt_in" json:"notifications_opt_in"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// TenantWithRole pairs a tenant with the caller's role in it.
type TenantWithRole struct {
	Tenant
	Role string `json:"role"`
}

// MemberInfo is one row of the members listing.
type MemberInfo struct {
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Email       string    `db:"email" json:"email"`
	FullName    *string   `db:"full_name" json:"full_name"`
	Role        string    `db:"role" json:"role"`
	Permissions []string  `db:"permissions" json:"permissions"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
