package sales

import (
	"time"

	"github.com/google/uuid"
)

// Earning event types. Ledger rows are immutable; corrections are recorded
// as REFUND or ADJUSTMENT rows, never edits.
const (
	EventTenantSignup     = "TENANT_SIGNUP"
	EventSubscriptionPaid = "SUBSCRIPTION_PAID"
	EventRefund           = "REFUND"
	EventAdjustment       = "ADJUSTMENT"
)

// DefaultCurrency is used when an event carries no explicit currency.
const DefaultCurrency = "KES"

// Profile is a salesperson profile row.
type Profile struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	UserID                 uuid.UUID  `db:"user_id" json:"user_id"`
	ReferralCode           string     `db:"referral_code" json:"referral_code"`
	IsActive               bool       `db:"is_active" json:"is_active"`
	LastPaymentAmountCents *int64     `db:"last_payment_amount_cents" json:"last_payment_amount_cents"`
	LastPaymentPhone       *string    `db:"last_payment_phone" json:"last_payment_phone"`
	LastPaymentAssignedAt  *time.Time `db:"last_payment_assigned_at" json:"last_payment_assigned_at"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
}

// EarningEvent is one immutable ledger row.
type EarningEvent struct {
	ID                    uuid.UUID      `db:"id" json:"id"`
	SalespersonProfileID  uuid.UUID      `db:"salesperson_profile_id" json:"salesperson_profile_id"`
	TenantID              *uuid.UUID     `db:"tenant_id" json:"tenant_id"`
	EventType             string         `db:"event_type" json:"event_type"`
	Currency              string         `db:"currency" json:"currency"`
	GrossAmountCents      int64          `db:"gross_amount_cents" json:"gross_amount_cents"`
	CommissionAmountCents int64          `db:"commission_amount_cents" json:"commission_amount_cents"`
	Source                string         `db:"source" json:"source"`
	OccurredAt            time.Time      `db:"occurred_at" json:"occurred_at"`
	Meta                  map[string]any `db:"meta" json:"meta"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
}

// Stats aggregates the ledger for the salesperson dashboard.
type Stats struct {
	TotalEvents               int   `json:"total_events"`
	TotalCommissionCents      int64 `json:"total_commission_cents"`
	TotalGrossCents           int64 `json:"total_gross_cents"`
	Last30DaysEvents          int   `json:"last_30_days_events"`
	Last30DaysCommissionCents int64 `json:"last_30_days_commission_cents"`
	ReferredTenants           int   `json:"referred_tenants"`
}
