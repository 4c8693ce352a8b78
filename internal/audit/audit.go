// Package audit writes the append-only audit trail.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventCodeRequested          = "auth.code_requested"
	EventTenantCreated          = "tenant.created"
	EventTenantMemberUpdated    = "tenant.member_updated"
	EventInviteCreated          = "tenant.invite_created"
	EventInviteRevoked          = "tenant.invite_revoked"
	EventInviteAccepted         = "tenant.invite_accepted"
	EventPlatformInviteCreated  = "platform.invite_created"
	EventPlatformInviteAccepted = "platform.invite_accepted"
	EventPlatformUserDeleted    = "platform.user_deleted"
	EventSalespersonCreated     = "sales.salesperson_created"
	EventSalespersonUpdated     = "sales.salesperson_updated"
	EventSalespersonCodeRotated = "sales.code_rotated"
	EventSalesPaymentAssigned   = "sales.payment_assigned"
	EventEarningRecorded        = "sales.earning_recorded"
)

// Event is an audit log row.
type Event struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	TenantID    *uuid.UUID             `db:"tenant_id" json:"tenant_id"`
	ActorUserID *uuid.UUID             `db:"actor_user_id" json:"actor_user_id"`
	Action      string                 `db:"action" json:"action"`
	Meta        map[string]interface{} `db:"meta" json:"meta"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

// Writer appends audit events.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	TenantID    *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	tenantID := toNullUUID(params.TenantID)
	actorUserID := toNullUUID(params.ActorUserID)

	_, err := w.pool.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`, tenantID, actorUserID, params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogCodeRequested(ctx context.Context, email string) error {
	return w.Log(ctx, LogParams{
		Action: EventCodeRequested,
		Meta: map[string]interface{}{
			"email": email,
		},
	})
}

func (w *Writer) LogTenantCreated(ctx context.Context, tenantID, ownerUserID uuid.UUID, name, tier string) error {
	return w.Log(ctx, LogParams{
		TenantID:    &tenantID,
		ActorUserID: &ownerUserID,
		Action:      EventTenantCreated,
		Meta: map[string]interface{}{
			"name": name,
			"tier": tier,
		},
	})
}

func (w *Writer) LogTenantMemberUpdated(ctx context.Context, tenantID, actorUserID, targetUserID uuid.UUID, previousRole, newRole string, isActive bool) error {
	return w.Log(ctx, LogParams{
		TenantID:    &tenantID,
		ActorUserID: &actorUserID,
		Action:      EventTenantMemberUpdated,
		Meta: map[string]interface{}{
			"target_user_id": targetUserID.String(),
			"previous_role":  previousRole,
			"new_role":       newRole,
			"is_active":      isActive,
		},
	})
}

func (w *Writer) LogInviteCreated(ctx context.Context, tenantID, actorUserID, inviteID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		TenantID:    &tenantID,
		ActorUserID: &actorUserID,
		Action:      EventInviteCreated,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
			"email":     email,
			"role":      role,
		},
	})
}

func (w *Writer) LogInviteRevoked(ctx context.Context, tenantID, actorUserID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		TenantID:    &tenantID,
		ActorUserID: &actorUserID,
		Action:      EventInviteRevoked,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogInviteAccepted(ctx context.Context, tenantID, actorUserID, inviteID uuid.UUID, role string) error {
	return w.Log(ctx, LogParams{
		TenantID:    &tenantID,
		ActorUserID: &actorUserID,
		Action:      EventInviteAccepted,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
			"role":      role,
		},
	})
}

func (w *Writer) LogPlatformInviteCreated(ctx context.Context, actorUserID, inviteID uuid.UUID, email, inviteeType string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventPlatformInviteCreated,
		Meta: map[string]interface{}{
			"invite_id":    inviteID.String(),
			"email":        email,
			"invitee_type": inviteeType,
		},
	})
}

func (w *Writer) LogPlatformInviteAccepted(ctx context.Context, actorUserID, inviteID uuid.UUID, role string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventPlatformInviteAccepted,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
			"role":      role,
		},
	})
}

func (w *Writer) LogPlatformUserDeleted(ctx context.Context, actorUserID, targetUserID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventPlatformUserDeleted,
		Meta: map[string]interface{}{
			"target_user_id": targetUserID.String(),
		},
	})
}

func (w *Writer) LogSalespersonCreated(ctx context.Context, actorUserID, salespersonUserID uuid.UUID, referralCode string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventSalespersonCreated,
		Meta: map[string]interface{}{
			"salesperson_user_id": salespersonUserID.String(),
			"referral_code":       referralCode,
		},
	})
}

func (w *Writer) LogSalespersonUpdated(ctx context.Context, actorUserID, profileID uuid.UUID, isActive bool) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventSalespersonUpdated,
		Meta: map[string]interface{}{
			"salesperson_profile_id": profileID.String(),
			"is_active":              isActive,
		},
	})
}

func (w *Writer) LogSalespersonCodeRotated(ctx context.Context, actorUserID, profileID uuid.UUID, referralCode string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventSalespersonCodeRotated,
		Meta: map[string]interface{}{
			"salesperson_profile_id": profileID.String(),
			"referral_code":          referralCode,
		},
	})
}

func (w *Writer) LogSalesPaymentAssigned(ctx context.Context, actorUserID, salespersonUserID uuid.UUID, amountCents int64, phone string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventSalesPaymentAssigned,
		Meta: map[string]interface{}{
			"salesperson_user_id": salespersonUserID.String(),
			"amount_cents":        amountCents,
			"phone":               phone,
		},
	})
}

func (w *Writer) LogEarningRecorded(ctx context.Context, tenantID, salespersonProfileID uuid.UUID, eventType string, commissionCents int64) error {
	return w.Log(ctx, LogParams{
		TenantID: &tenantID,
		Action:   EventEarningRecorded,
		Meta: map[string]interface{}{
			"salesperson_profile_id": salespersonProfileID.String(),
			"event_type":             eventType,
			"commission_cents":       commissionCents,
		},
	})
}
