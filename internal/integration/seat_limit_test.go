package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type seatLimitBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Tier         string `json:"tier"`
	Limit        int    `json:"limit"`
	ActiveStaff  *int   `json:"active_staff"`
	ActiveAdmins *int   `json:"active_admins"`
}

func TestE2E_StaffSeatLimit_Sungura(t *testing.T) {
	srv, _ := newTestApp(t, testConfig())

	ownerBearer, _ := loginUser(t, srv, "owner@example.com")
	tenantID := createTenant(t, srv, ownerBearer, "Duka Moja")

	staff1Bearer, _ := loginUser(t, srv, "staff1@example.com")
	staff2Bearer, _ := loginUser(t, srv, "staff2@example.com")

	// The sungura tier seats one STAFF member.
	_, token1 := createTenantInvite(t, srv, ownerBearer, tenantID, "staff1@example.com", "STAFF")
	status, body := acceptTenantInvite(t, srv, staff1Bearer, token1)
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	_, token2 := createTenantInvite(t, srv, ownerBearer, tenantID, "staff2@example.com", "STAFF")
	status, body = acceptTenantInvite(t, srv, staff2Bearer, token2)
	require.Equal(t, http.StatusForbidden, status, "body: %s", string(body))

	var limitResp seatLimitBody
	decodeBody(t, body, &limitResp)
	require.Equal(t, "SEAT_LIMIT_EXCEEDED", limitResp.Error)
	require.NotEmpty(t, limitResp.Message)
	require.Equal(t, "sungura", limitResp.Tier)
	require.Equal(t, 1, limitResp.Limit)
	require.NotNil(t, limitResp.ActiveStaff)
	require.Equal(t, 1, *limitResp.ActiveStaff)
	require.Nil(t, limitResp.ActiveAdmins)

	// The invitation survives the rejection and can be retried after a seat
	// frees up.
	status, _ = doRequest(t, srv, apiRequest{
		Method:   http.MethodPatch,
		Path:     "/api/v1/tenants/members/" + memberUserID(t, srv, ownerBearer, tenantID, "staff1@example.com").String(),
		Bearer:   ownerBearer,
		TenantID: tenantID.String(),
		Body:     map[string]any{"is_active": false},
	})
	require.Equal(t, http.StatusOK, status)

	status, body = acceptTenantInvite(t, srv, staff2Bearer, token2)
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))
}

func TestE2E_AdminAndStaffCapsAreIndependent(t *testing.T) {
	srv, _ := newTestApp(t, testConfig())

	ownerBearer, _ := loginUser(t, srv, "owner@example.com")
	tenantID := createTenant(t, srv, ownerBearer, "Duka Moja")

	staffBearer, _ := loginUser(t, srv, "staff@example.com")
	adminBearer, _ := loginUser(t, srv, "admin@example.com")
	admin2Bearer, _ := loginUser(t, srv, "admin2@example.com")

	// Fill the STAFF seat.
	_, staffToken := createTenantInvite(t, srv, ownerBearer, tenantID, "staff@example.com", "STAFF")
	status, _ := acceptTenantInvite(t, srv, staffBearer, staffToken)
	require.Equal(t, http.StatusOK, status)

	// The ADMIN seat is still open; the OWNER row never counts against it.
	_, adminToken := createTenantInvite(t, srv, ownerBearer, tenantID, "admin@example.com", "ADMIN")
	status, body := acceptTenantInvite(t, srv, adminBearer, adminToken)
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	// A second ADMIN hits the admin cap with its own counter.
	_, admin2Token := createTenantInvite(t, srv, ownerBearer, tenantID, "admin2@example.com", "ADMIN")
	status, body = acceptTenantInvite(t, srv, admin2Bearer, admin2Token)
	require.Equal(t, http.StatusForbidden, status, "body: %s", string(body))

	var limitResp seatLimitBody
	decodeBody(t, body, &limitResp)
	require.Equal(t, "SEAT_LIMIT_EXCEEDED", limitResp.Error)
	require.Equal(t, 1, limitResp.Limit)
	require.NotNil(t, limitResp.ActiveAdmins)
	require.Equal(t, 1, *limitResp.ActiveAdmins)
	require.Nil(t, limitResp.ActiveStaff)
}

func TestE2E_SeatCountExcludesActingUser(t *testing.T) {
	srv, _ := newTestApp(t, testConfig())

	ownerBearer, _ := loginUser(t, srv, "owner@example.com")
	tenantID := createTenant(t, srv, ownerBearer, "Duka Moja")
	staffBearer, _ := loginUser(t, srv, "staff@example.com")

	_, token := createTenantInvite(t, srv, ownerBearer, tenantID, "staff@example.com", "STAFF")
	status, _ := acceptTenantInvite(t, srv, staffBearer, token)
	require.Equal(t, http.StatusOK, status)

	// Deactivate the member, then re-invite. The cap is full of nobody: the
	// acting user's own row never blocks them, so the accept reactivates.
	staffID := memberUserID(t, srv, ownerBearer, tenantID, "staff@example.com")
	status, _ = doRequest(t, srv, apiRequest{
		Method:   http.MethodPatch,
		Path:     "/api/v1/tenants/members/" + staffID.String(),
		Bearer:   ownerBearer,
		TenantID: tenantID.String(),
		Body:     map[string]any{"is_active": false},
	})
	require.Equal(t, http.StatusOK, status)

	_, token2 := createTenantInvite(t, srv, ownerBearer, tenantID, "staff@example.com", "STAFF")
	status, body := acceptTenantInvite(t, srv, staffBearer, token2)
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	status, body = doRequest(t, srv, apiRequest{
		Method:   http.MethodGet,
		Path:     "/api/v1/tenants/membership",
		Bearer:   staffBearer,
		TenantID: tenantID.String(),
	})
	require.Equal(t, http.StatusOK, status)

	var membership struct {
		Membership struct {
			IsActive bool `json:"is_active"`
		} `json:"membership"`
	}
	decodeBody(t, body, &membership)
	require.True(t, membership.Membership.IsActive)
}

func TestE2E_PromotionInPlace_StaffToAdmin(t *testing.T) {
	srv, _ := newTestApp(t, testConfig())

	ownerBearer, _ := loginUser(t, srv, "owner@example.com")
	tenantID := createTenant(t, srv, ownerBearer, "Duka Moja")
	memberBearer, _ := loginUser(t, srv, "member@example.com")

	_, staffToken := createTenantInvite(t, srv, ownerBearer, tenantID, "member@example.com", "STAFF")
	status, _ := acceptTenantInvite(t, srv, memberBearer, staffToken)
	require.Equal(t, http.StatusOK, status)

	// A member holding STAFF is not "already a member" for invite purposes
	// once deactivated; while active, the owner promotes by deactivating and
	// re-inviting at the higher role.
	memberID := memberUserID(t, srv, ownerBearer, tenantID, "member@example.com")
	status, _ = doRequest(t, srv, apiRequest{
		Method:   http.MethodPatch,
		Path:     "/api/v1/tenants/members/" + memberID.String(),
		Bearer:   ownerBearer,
		TenantID: tenantID.String(),
		Body:     map[string]any{"is_active": false},
	})
	require.Equal(t, http.StatusOK, status)

	_, adminToken := createTenantInvite(t, srv, ownerBearer, tenantID, "member@example.com", "ADMIN")
	status, body := acceptTenantInvite(t, srv, memberBearer, adminToken)
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var accepted struct {
		Role string `json:"role"`
	}
	decodeBody(t, body, &accepted)
	require.Equal(t, "ADMIN", accepted.Role)

	status, body = doRequest(t, srv, apiRequest{
		Method:   http.MethodGet,
		Path:     "/api/v1/tenants/membership",
		Bearer:   memberBearer,
		TenantID: tenantID.String(),
	})
	require.Equal(t, http.StatusOK, status)

	var membership struct {
		Membership struct {
			Role     string `json:"role"`
			IsActive bool   `json:"is_active"`
		} `json:"membership"`
	}
	decodeBody(t, body, &membership)
	require.Equal(t, "ADMIN", membership.Membership.Role)
	require.True(t, membership.Membership.IsActive)
}

func TestE2E_ConcurrentAccepts_NeverOvershootCap(t *testing.T) {
	cfg := testConfig()
	cfg.TierStaffCaps = map[string]int{"sungura": 3}
	srv, pool := newTestApp(t, cfg)

	ownerBearer, _ := loginUser(t, srv, "owner@example.com")
	tenantID := createTenant(t, srv, ownerBearer, "Duka Moja")

	const contenders = 8
	const seatCap = 3

	type contender struct {
		bearer string
		token  string
	}
	entrants := make([]contender, contenders)
	for i := range entrants {
		email := fmt.Sprintf("staff%d@example.com", i)
		bearer, _ := loginUser(t, srv, email)
		_, token := createTenantInvite(t, srv, ownerBearer, tenantID, email, "STAFF")
		entrants[i] = contender{bearer: bearer, token: token}
	}

	statuses := make([]int, contenders)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, e := range entrants {
		wg.Add(1)
		go func(i int, e contender) {
			defer wg.Done()
			<-start
			status, _ := acceptTenantInvite(t, srv, e.bearer, e.token)
			statuses[i] = status
		}(i, e)
	}
	close(start)
	wg.Wait()

	var accepted, rejected int
	for _, status := range statuses {
		switch status {
		case http.StatusOK:
			accepted++
		case http.StatusForbidden:
			rejected++
		default:
			t.Fatalf("unexpected status %d", status)
		}
	}
	require.Equal(t, seatCap, accepted, "exactly the cap must win")
	require.Equal(t, contenders-seatCap, rejected)

	var activeStaff int
	err := pool.QueryRow(context.Background(), `
		SELECT COUNT(*) FROM tenant_memberships
		WHERE tenant_id = $1 AND role = 'STAFF' AND is_active
	`, tenantID).Scan(&activeStaff)
	require.NoError(t, err)
	require.Equal(t, seatCap, activeStaff)
}

// memberUserID resolves a member's user id via the members listing.
func memberUserID(t *testing.T, srv *httptest.Server, bearer string, tenantID uuid.UUID, email string) uuid.UUID {
	t.Helper()

	status, body := doRequest(t, srv, apiRequest{
		Method:   http.MethodGet,
		Path:     "/api/v1/tenants/members",
		Bearer:   bearer,
		TenantID: tenantID.String(),
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var resp struct {
		Members []struct {
			UserID uuid.UUID `json:"user_id"`
			Email  string    `json:"email"`
		} `json:"members"`
	}
	decodeBody(t, body, &resp)
	for _, m := range resp.Members {
		if m.Email == email {
			return m.UserID
		}
	}
	t.Fatalf("member %s not found", email)
	return uuid.Nil
}
