package tier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaffCap_Defaults(t *testing.T) {
	limits := DefaultLimits()

	require.Equal(t, 1, limits.StaffCap("sungura"))
	require.Equal(t, 5, limits.StaffCap("swara"))
	require.Equal(t, 10, limits.StaffCap("ndovu"))
}

func TestStaffCap_UnknownTierFailsClosed(t *testing.T) {
	limits := DefaultLimits()

	require.Equal(t, 1, limits.StaffCap("platinum"))
	require.Equal(t, 1, limits.StaffCap(""))
}

func TestStaffCap_NormalizesLabel(t *testing.T) {
	limits := DefaultLimits()

	require.Equal(t, 5, limits.StaffCap(" SWARA "))
}

func TestNewLimits_Overrides(t *testing.T) {
	limits := NewLimits(map[string]int{"swara": 6, "NDOVU": 9}, 2)

	require.Equal(t, 1, limits.StaffCap("sungura"))
	require.Equal(t, 6, limits.StaffCap("swara"))
	require.Equal(t, 9, limits.StaffCap("ndovu"))
	require.Equal(t, 2, limits.AdminCap("sungura"))
}

func TestNextTier(t *testing.T) {
	require.Equal(t, "swara", NextTier("sungura"))
	require.Equal(t, "ndovu", NextTier("swara"))
	require.Equal(t, "", NextTier("ndovu"))
	require.Equal(t, "", NextTier("unknown"))
}

func TestResolveEffective_ActiveSubscriptionWins(t *testing.T) {
	now := time.Now()

	got := ResolveEffective("sungura", Subscription{Status: StatusActive, Tier: "ndovu"}, now)
	require.Equal(t, "ndovu", got)
}

func TestResolveEffective_TrialHonoredUntilEnd(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	got := ResolveEffective("sungura", Subscription{Status: StatusTrialing, Tier: "swara", TrialEndsAt: &future}, now)
	require.Equal(t, "swara", got)

	got = ResolveEffective("sungura", Subscription{Status: StatusTrialing, Tier: "swara", TrialEndsAt: &past}, now)
	require.Equal(t, "sungura", got)

	got = ResolveEffective("sungura", Subscription{Status: StatusTrialing, Tier: "swara"}, now)
	require.Equal(t, "swara", got)
}

func TestResolveEffective_FallsBackToBaseTier(t *testing.T) {
	now := time.Now()

	got := ResolveEffective("Swara", Subscription{}, now)
	require.Equal(t, "swara", got)

	got = ResolveEffective("swara", Subscription{Status: "canceled", Tier: "ndovu"}, now)
	require.Equal(t, "swara", got)
}
