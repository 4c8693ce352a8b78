package integration

import (
	"context"
	"testing"
	"time"

	"github.com/postika/postika/internal/db"
	"github.com/stretchr/testify/require"
)

func TestMigrations_ApplyAndRerun(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// newTestDB already migrated; a second run must be a no-op.
	require.NoError(t, db.RunMigrations(ctx, pool))

	for _, table := range []string{
		"users",
		"tenants",
		"tenant_memberships",
		"tenant_invitations",
		"platform_invitations",
		"platform_memberships",
		"salesperson_profiles",
		"salesperson_earning_events",
		"audit_log",
	} {
		var exists bool
		err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists)
		require.NoError(t, err)
		require.True(t, exists, "table %s missing", table)
	}

	var applied int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	require.Equal(t, 4, applied)
}
