// Package tier holds the subscription-tier policy: the tier labels, the
// seat-cap table, and the effective-tier resolver. Everything here is pure;
// persistence and enforcement live with the callers.
package tier

import (
	"strings"
	"time"
)

// Known tier labels, lowest to highest.
const (
	Sungura = "sungura"
	Swara   = "swara"
	Ndovu   = "ndovu"
)

// Subscription statuses consulted by ResolveEffective.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
)

// Normalize lowercases and trims a tier label.
func Normalize(tier string) string {
	return strings.ToLower(strings.TrimSpace(tier))
}

// Limits is the immutable seat-cap table, built once at startup. Unknown
// tiers resolve to the sungura caps: the policy fails closed, never open.
type Limits struct {
	staffCaps map[string]int
	adminCap  int
}

func defaultStaffCaps() map[string]int {
	return map[string]int{
		Sungura: 1,
		Swara:   5,
		Ndovu:   10,
	}
}

// NewLimits builds the cap table from the defaults plus any overrides from
// configuration. adminCap applies to every tier.
func NewLimits(staffOverrides map[string]int, adminCap int) *Limits {
	caps := defaultStaffCaps()
	for t, n := range staffOverrides {
		caps[Normalize(t)] = n
	}
	if adminCap <= 0 {
		adminCap = 1
	}
	return &Limits{staffCaps: caps, adminCap: adminCap}
}

// DefaultLimits returns the built-in cap table.
func DefaultLimits() *Limits {
	return NewLimits(nil, 1)
}

// StaffCap returns the maximum number of active STAFF memberships for a tier.
func (l *Limits) StaffCap(tier string) int {
	if n, ok := l.staffCaps[Normalize(tier)]; ok {
		return n
	}
	return l.staffCaps[Sungura]
}

// AdminCap returns the maximum number of active ADMIN memberships for a tier.
func (l *Limits) AdminCap(tier string) int {
	_ = tier
	return l.adminCap
}

// NextTier returns the next tier in the upgrade path, or "" if the tier is
// already the highest or unknown.
func NextTier(tier string) string {
	switch Normalize(tier) {
	case Sungura:
		return Swara
	case Swara:
		return Ndovu
	default:
		return ""
	}
}

// Subscription carries the billing fields consulted when resolving the
// enforcement tier. All fields are optional; zero values mean "no
// subscription on record".
type Subscription struct {
	Status      string
	Tier        string
	TrialEndsAt *time.Time
}

// ResolveEffective returns the tier used for seat-limit enforcement.
//
// An active subscription tier wins. A trialing subscription tier is honored
// until its trial end. Otherwise the tenant's base tier applies.
func ResolveEffective(baseTier string, sub Subscription, now time.Time) string {
	subTier := Normalize(sub.Tier)

	switch sub.Status {
	case StatusActive:
		if subTier != "" {
			return subTier
		}
	case StatusTrialing:
		if subTier != "" && (sub.TrialEndsAt == nil || sub.TrialEndsAt.After(now)) {
			return subTier
		}
	}

	return Normalize(baseTier)
}
