package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/postika/postika/internal/platform"
	"github.com/stretchr/testify/require"
)

func TestE2E_PlatformInvites_SalesReferralAndCommission(t *testing.T) {
	srv, pool := newTestApp(t, testConfig())
	ctx := context.Background()

	// Bootstrap the first SUPER_ADMIN the way the admin CLI does.
	superBearer, superID := loginUser(t, srv, "root@example.com")
	grantedID, err := platform.GrantSuperAdmin(ctx, pool, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, superID, grantedID)

	// Outsiders get no platform surface.
	outsiderBearer, _ := loginUser(t, srv, "outsider@example.com")
	status, _ := doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations",
		Bearer: outsiderBearer,
		Body:   map[string]any{"email": "x@example.com", "invitee_type": "STAFF"},
	})
	require.Equal(t, http.StatusForbidden, status)

	// The super admin invites a platform STAFF member with two checkboxes.
	status, body := doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations",
		Bearer: superBearer,
		Body: map[string]any{
			"email":        "ops@example.com",
			"invitee_type": "STAFF",
			"permissions":  []string{"INVITE_SALESPEOPLE", "ASSIGN_SALES_PAYMENTS"},
		},
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", string(body))

	var staffInvite struct {
		Invitation struct {
			ID          uuid.UUID `json:"id"`
			InviteeType string    `json:"invitee_type"`
			Role        string    `json:"role"`
			Permissions []string  `json:"permissions"`
			Token       string    `json:"token"`
		} `json:"invitation"`
	}
	decodeBody(t, body, &staffInvite)
	require.Equal(t, "STAFF", staffInvite.Invitation.InviteeType)
	require.Equal(t, "STAFF", staffInvite.Invitation.Role)
	require.ElementsMatch(t, []string{"INVITE_SALESPEOPLE", "ASSIGN_SALES_PAYMENTS"}, staffInvite.Invitation.Permissions)
	require.NotEmpty(t, staffInvite.Invitation.Token)

	// Unknown permission keys are refused.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations",
		Bearer: superBearer,
		Body: map[string]any{
			"email":        "other@example.com",
			"invitee_type": "STAFF",
			"permissions":  []string{"LAUNCH_ROCKETS"},
		},
	})
	require.Equal(t, http.StatusBadRequest, status)

	opsBearer, _ := loginUser(t, srv, "ops@example.com")
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations/accept",
		Bearer: opsBearer,
		Body:   map[string]any{"token": staffInvite.Invitation.Token, "accept_tos": true},
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var staffAccept struct {
		Status     string `json:"status"`
		Role       string `json:"role"`
		Membership struct {
			Permissions []string `json:"permissions"`
		} `json:"membership"`
	}
	decodeBody(t, body, &staffAccept)
	require.Equal(t, "ok", staffAccept.Status)
	require.Equal(t, "STAFF", staffAccept.Role)
	require.Contains(t, staffAccept.Membership.Permissions, "INVITE_SALESPEOPLE")

	// Platform STAFF may not invite more platform STAFF.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations",
		Bearer: opsBearer,
		Body:   map[string]any{"email": "more-ops@example.com", "invitee_type": "STAFF"},
	})
	require.Equal(t, http.StatusForbidden, status)

	// But with INVITE_SALESPEOPLE they invite a salesperson.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations",
		Bearer: opsBearer,
		Body:   map[string]any{"email": "seller@example.com", "invitee_type": "SALESPERSON"},
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", string(body))

	var sellerInvite struct {
		Invitation struct {
			Role  string `json:"role"`
			Token string `json:"token"`
		} `json:"invitation"`
	}
	decodeBody(t, body, &sellerInvite)
	require.Equal(t, "SALESPERSON", sellerInvite.Invitation.Role)

	sellerBearer, sellerID := loginUser(t, srv, "seller@example.com")
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations/accept",
		Bearer: sellerBearer,
		Body:   map[string]any{"token": sellerInvite.Invitation.Token, "accept_tos": true},
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var sellerAccept struct {
		Role         string `json:"role"`
		ReferralCode string `json:"referral_code"`
	}
	decodeBody(t, body, &sellerAccept)
	require.Equal(t, "SALESPERSON", sellerAccept.Role)
	require.Len(t, sellerAccept.ReferralCode, 6)

	// A referred tenant signup lands in the commission ledger.
	founderBearer, _ := loginUser(t, srv, "founder@example.com")
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/tenants",
		Bearer: founderBearer,
		Body: map[string]any{
			"name":           "Duka la Rafiki",
			"accepted_terms": true,
			"referral_code":  sellerAccept.ReferralCode,
		},
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", string(body))

	// An unknown referral code fails fast.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/tenants",
		Bearer: outsiderBearer,
		Body: map[string]any{
			"name":           "Duka Bandia",
			"accepted_terms": true,
			"referral_code":  "ZZZZZ9",
		},
	})
	require.Equal(t, http.StatusBadRequest, status, "body: %s", string(body))
	require.Equal(t, "Unknown referral code", detailOf(t, body))

	// The salesperson sees the signup in earnings and stats.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/sales/me/earnings",
		Bearer: sellerBearer,
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var earnings struct {
		Earnings []struct {
			EventType             string `json:"event_type"`
			Currency              string `json:"currency"`
			GrossAmountCents      int64  `json:"gross_amount_cents"`
			CommissionAmountCents int64  `json:"commission_amount_cents"`
		} `json:"earnings"`
	}
	decodeBody(t, body, &earnings)
	require.Len(t, earnings.Earnings, 1)
	require.Equal(t, "TENANT_SIGNUP", earnings.Earnings[0].EventType)
	require.Equal(t, "KES", earnings.Earnings[0].Currency)
	require.Equal(t, int64(1000000), earnings.Earnings[0].GrossAmountCents)
	require.Equal(t, int64(200000), earnings.Earnings[0].CommissionAmountCents)

	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/sales/me/stats",
		Bearer: sellerBearer,
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var stats struct {
		ReferralCode string `json:"referral_code"`
		Stats        struct {
			TotalEvents          int   `json:"total_events"`
			TotalCommissionCents int64 `json:"total_commission_cents"`
			ReferredTenants      int   `json:"referred_tenants"`
		} `json:"stats"`
	}
	decodeBody(t, body, &stats)
	require.Equal(t, sellerAccept.ReferralCode, stats.ReferralCode)
	require.Equal(t, 1, stats.Stats.TotalEvents)
	require.Equal(t, int64(200000), stats.Stats.TotalCommissionCents)
	require.Equal(t, 1, stats.Stats.ReferredTenants)

	// A non-salesperson asking for earnings is turned away.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/sales/me/earnings",
		Bearer: outsiderBearer,
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "Not a salesperson", detailOf(t, body))

	// The ops member assigns a payment to the salesperson.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations/salespeople/" + sellerID.String() + "/assign-payment",
		Bearer: opsBearer,
		Body:   map[string]any{"amount_cents": 250000, "phone": "+254712345678"},
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-invitations/salespeople/" + sellerID.String() + "/assign-payment",
		Bearer: opsBearer,
		Body:   map[string]any{"amount_cents": 0, "phone": "+254712345678"},
	})
	require.Equal(t, http.StatusBadRequest, status)

	// Deleting a platform user needs the checkbox; ops lacks it.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodDelete,
		Path:   "/api/v1/platform-invitations/users/" + sellerID.String(),
		Bearer: opsBearer,
	})
	require.Equal(t, http.StatusForbidden, status)

	// The super admin overrides every checkbox. Deletion deactivates, never
	// removes rows.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodDelete,
		Path:   "/api/v1/platform-invitations/users/" + sellerID.String(),
		Bearer: superBearer,
	})
	require.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/sales/me/stats",
		Bearer: sellerBearer,
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "Salesperson profile is deactivated", detailOf(t, body))

	var profileRows int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM salesperson_profiles WHERE user_id = $1`, sellerID).Scan(&profileRows)
	require.NoError(t, err)
	require.Equal(t, 1, profileRows)

	// The platform audit feed records the lifecycle.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/platform-audit?limit=100",
		Bearer: superBearer,
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var auditResp struct {
		Events []struct {
			Action string `json:"action"`
		} `json:"events"`
	}
	decodeBody(t, body, &auditResp)
	actions := make(map[string]bool)
	for _, ev := range auditResp.Events {
		actions[ev.Action] = true
	}
	require.True(t, actions["platform.invite_created"], "missing platform.invite_created audit event")
	require.True(t, actions["platform.invite_accepted"], "missing platform.invite_accepted audit event")
	require.True(t, actions["sales.payment_assigned"], "missing sales.payment_assigned audit event")
	require.True(t, actions["platform.user_deleted"], "missing platform.user_deleted audit event")

	// The audit feed is staff-only.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/platform-audit",
		Bearer: outsiderBearer,
	})
	require.Equal(t, http.StatusForbidden, status)
}

func TestE2E_PlatformSales_CreateSalespersonDirectly(t *testing.T) {
	srv, pool := newTestApp(t, testConfig())
	ctx := context.Background()

	superBearer, _ := loginUser(t, srv, "root@example.com")
	_, err := platform.GrantSuperAdmin(ctx, pool, "root@example.com")
	require.NoError(t, err)

	sellerBearer, sellerID := loginUser(t, srv, "seller@example.com")

	status, body := doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-sales/salespeople",
		Bearer: superBearer,
		Body:   map[string]any{"user_id": sellerID},
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", string(body))

	var created struct {
		Profile struct {
			ID           uuid.UUID `json:"id"`
			UserID       uuid.UUID `json:"user_id"`
			ReferralCode string    `json:"referral_code"`
			IsActive     bool      `json:"is_active"`
		} `json:"profile"`
	}
	decodeBody(t, body, &created)
	require.Equal(t, sellerID, created.Profile.UserID)
	require.Len(t, created.Profile.ReferralCode, 6)
	require.True(t, created.Profile.IsActive)

	// A second create for the same user conflicts.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-sales/salespeople",
		Bearer: superBearer,
		Body:   map[string]any{"email": "seller@example.com"},
	})
	require.Equal(t, http.StatusConflict, status)

	// The new salesperson can read an empty ledger immediately.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/sales/me/stats",
		Bearer: sellerBearer,
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var stats struct {
		Stats struct {
			TotalEvents int `json:"total_events"`
		} `json:"stats"`
	}
	decodeBody(t, body, &stats)
	require.Equal(t, 0, stats.Stats.TotalEvents)
}

func TestE2E_PlatformSales_AdminListUpdateRotate(t *testing.T) {
	srv, pool := newTestApp(t, testConfig())
	ctx := context.Background()

	superBearer, _ := loginUser(t, srv, "root@example.com")
	_, err := platform.GrantSuperAdmin(ctx, pool, "root@example.com")
	require.NoError(t, err)

	sellerBearer, sellerID := loginUser(t, srv, "seller@example.com")

	status, body := doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-sales/salespeople",
		Bearer: superBearer,
		Body:   map[string]any{"user_id": sellerID},
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", string(body))

	var created struct {
		Profile struct {
			ID           uuid.UUID `json:"id"`
			ReferralCode string    `json:"referral_code"`
		} `json:"profile"`
	}
	decodeBody(t, body, &created)
	originalCode := created.Profile.ReferralCode

	// The listing is an admin surface.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/platform-sales/salespeople",
		Bearer: sellerBearer,
	})
	require.Equal(t, http.StatusForbidden, status)

	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/platform-sales/salespeople?limit=10",
		Bearer: superBearer,
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var listing struct {
		Items []struct {
			ID           uuid.UUID `json:"id"`
			UserID       uuid.UUID `json:"user_id"`
			ReferralCode string    `json:"referral_code"`
		} `json:"items"`
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	decodeBody(t, body, &listing)
	require.Equal(t, 1, listing.Total)
	require.Len(t, listing.Items, 1)
	require.Equal(t, sellerID, listing.Items[0].UserID)
	require.Equal(t, originalCode, listing.Items[0].ReferralCode)

	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/platform-sales/salespeople?limit=0",
		Bearer: superBearer,
	})
	require.Equal(t, http.StatusBadRequest, status)

	// Patching needs at least one field and an existing profile.
	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPatch,
		Path:   "/api/v1/platform-sales/salespeople/" + created.Profile.ID.String(),
		Bearer: superBearer,
		Body:   map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPatch,
		Path:   "/api/v1/platform-sales/salespeople/" + uuid.NewString(),
		Bearer: superBearer,
		Body:   map[string]any{"is_active": false},
	})
	require.Equal(t, http.StatusNotFound, status)

	// Deactivation stops the referral code from resolving.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPatch,
		Path:   "/api/v1/platform-sales/salespeople/" + created.Profile.ID.String(),
		Bearer: superBearer,
		Body:   map[string]any{"is_active": false},
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	founderBearer, _ := loginUser(t, srv, "founder@example.com")
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/tenants",
		Bearer: founderBearer,
		Body: map[string]any{
			"name":           "Duka la Kwanza",
			"accepted_terms": true,
			"referral_code":  originalCode,
		},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Unknown referral code", detailOf(t, body))

	// Reactivate and record a payout phone in one patch.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPatch,
		Path:   "/api/v1/platform-sales/salespeople/" + created.Profile.ID.String(),
		Bearer: superBearer,
		Body:   map[string]any{"is_active": true, "last_payment_phone": "+254 700 000-001"},
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var patched struct {
		Profile struct {
			IsActive         bool    `json:"is_active"`
			LastPaymentPhone *string `json:"last_payment_phone"`
		} `json:"profile"`
	}
	decodeBody(t, body, &patched)
	require.True(t, patched.Profile.IsActive)
	require.NotNil(t, patched.Profile.LastPaymentPhone)
	require.Equal(t, "+254700000001", *patched.Profile.LastPaymentPhone)

	// Rotation invalidates the old code immediately.
	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-sales/salespeople/" + created.Profile.ID.String() + "/rotate-code",
		Bearer: superBearer,
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var rotated struct {
		Profile struct {
			ReferralCode string `json:"referral_code"`
		} `json:"profile"`
	}
	decodeBody(t, body, &rotated)
	require.Len(t, rotated.Profile.ReferralCode, 6)
	require.NotEqual(t, originalCode, rotated.Profile.ReferralCode)

	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/tenants",
		Bearer: founderBearer,
		Body: map[string]any{
			"name":           "Duka la Pili",
			"accepted_terms": true,
			"referral_code":  originalCode,
		},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Unknown referral code", detailOf(t, body))

	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/tenants",
		Bearer: founderBearer,
		Body: map[string]any{
			"name":           "Duka la Tatu",
			"accepted_terms": true,
			"referral_code":  rotated.Profile.ReferralCode,
		},
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/platform-sales/salespeople/" + uuid.NewString() + "/rotate-code",
		Bearer: superBearer,
	})
	require.Equal(t, http.StatusNotFound, status)
}
