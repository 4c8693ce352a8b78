package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/app"
	"github.com/postika/postika/internal/config"
	"github.com/postika/postika/internal/mailer"
	"github.com/postika/postika/internal/tenants"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                "dev",
		HTTPAddr:           ":0",
		BaseURL:            "http://localhost",
		DBDSN:              "unused",
		JWTSecret:          "test-secret",
		LogLevel:           "error",
		RateLimitRPM:       1000,
		AccessTokenMinutes: 60,
		MagicCodeTTLMin:    10,
		InviteTTLDays:      7,
		EmailFrom:          "no-reply@test.invalid",
		TierStaffCaps:      map[string]int{},
		TierAdminCap:       1,
		SignupGrossCents:   1000000,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*httptest.Server, *pgxpool.Pool) {
	t.Helper()

	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	m := mailer.New("", cfg.EmailFrom, cfg.BaseURL)
	srv := httptest.NewServer(app.NewRouter(pool, cfg, m))
	t.Cleanup(srv.Close)

	return srv, pool
}

type apiRequest struct {
	Method   string
	Path     string
	Bearer   string
	TenantID string
	Body     any
}

func doRequest(t *testing.T, srv *httptest.Server, req apiRequest) (int, []byte) {
	t.Helper()

	var bodyReader io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(req.Method, srv.URL+req.Path, bodyReader)
	require.NoError(t, err)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}
	if req.TenantID != "" {
		httpReq.Header.Set(tenants.TenantIDHeader, req.TenantID)
	}

	resp, err := srv.Client().Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func decodeBody(t *testing.T, body []byte, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, dst), "body: %s", string(body))
}

func detailOf(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, body, &resp)
	return resp.Detail
}

// loginUser runs the magic-code flow end to end and returns a bearer token
// plus the user id. Dev mode echoes the code in the response.
func loginUser(t *testing.T, srv *httptest.Server, email string) (string, uuid.UUID) {
	t.Helper()

	status, body := doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/request-code",
		Body:   map[string]any{"email": email},
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var codeResp struct {
		Status string `json:"status"`
		Code   string `json:"code"`
	}
	decodeBody(t, body, &codeResp)
	require.Equal(t, "ok", codeResp.Status)
	require.NotEmpty(t, codeResp.Code, "dev mode should reveal the code")

	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/verify-code",
		Body:   map[string]any{"email": email, "code": codeResp.Code},
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeBody(t, body, &tokenResp)
	require.Equal(t, "bearer", tokenResp.TokenType)
	require.NotEmpty(t, tokenResp.AccessToken)

	status, body = doRequest(t, srv, apiRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/auth/me",
		Bearer: tokenResp.AccessToken,
	})
	require.Equal(t, http.StatusOK, status, "body: %s", string(body))

	var me struct {
		ID uuid.UUID `json:"id"`
	}
	decodeBody(t, body, &me)
	require.NotEqual(t, uuid.Nil, me.ID)

	return tokenResp.AccessToken, me.ID
}

func createTenant(t *testing.T, srv *httptest.Server, bearer, name string) uuid.UUID {
	t.Helper()

	status, body := doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/tenants",
		Bearer: bearer,
		Body:   map[string]any{"name": name, "accepted_terms": true},
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", string(body))

	var resp struct {
		Tenant struct {
			ID   uuid.UUID `json:"id"`
			Tier string    `json:"tier"`
		} `json:"tenant"`
	}
	decodeBody(t, body, &resp)
	require.NotEqual(t, uuid.Nil, resp.Tenant.ID)
	require.Equal(t, "sungura", resp.Tenant.Tier)

	return resp.Tenant.ID
}

// createTenantInvite creates an invitation and returns its id and the bare
// token echoed in dev mode.
func createTenantInvite(t *testing.T, srv *httptest.Server, bearer string, tenantID uuid.UUID, email, role string) (uuid.UUID, string) {
	t.Helper()

	status, body := doRequest(t, srv, apiRequest{
		Method:   http.MethodPost,
		Path:     "/api/v1/tenant-invitations",
		Bearer:   bearer,
		TenantID: tenantID.String(),
		Body:     map[string]any{"email": email, "role": role},
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", string(body))

	var resp struct {
		Invitation struct {
			ID    uuid.UUID `json:"id"`
			Token string    `json:"token"`
		} `json:"invitation"`
	}
	decodeBody(t, body, &resp)
	require.NotEmpty(t, resp.Invitation.Token, "dev mode should reveal the token")

	return resp.Invitation.ID, resp.Invitation.Token
}

func acceptTenantInvite(t *testing.T, srv *httptest.Server, bearer, token string) (int, []byte) {
	t.Helper()

	return doRequest(t, srv, apiRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/tenant-invitations/accept",
		Bearer: bearer,
		Body:   map[string]any{"token": token, "accept_tos": true},
	})
}
