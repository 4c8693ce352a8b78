// Package rbac implements the tenant permission model: an immutable
// role-to-grant table built at startup, per-membership additive grants merged
// at check time, and a domain-wildcard rule where "tenant.*" matches every
// "tenant.foo".
package rbac

import "strings"

// Tenant roles.
const (
	RoleOwner   = "OWNER"
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleStaff   = "STAFF"
)

// Permission keys. The segment before the first dot is the domain; "<domain>.*"
// grants everything in that domain.
const (
	PermTenantRead          = "tenant.read"
	PermTenantWrite         = "tenant.write"
	PermTenantMembersRead   = "tenant.members.read"
	PermTenantMembersWrite  = "tenant.members.write"
	PermTenantInvitesManage = "tenant.invites.manage"

	PermCatalogRead   = "catalog.read"
	PermCatalogWrite  = "catalog.write"
	PermCatalogImport = "catalog.import"

	PermPublishRead     = "publish.read"
	PermPublishWrite    = "publish.write"
	PermPublishSchedule = "publish.schedule"

	PermAdsRead    = "ads.read"
	PermAdsWrite   = "ads.write"
	PermAdsBudgets = "ads.budgets"

	PermInboxRead   = "inbox.read"
	PermInboxWrite  = "inbox.write"
	PermInboxAssign = "inbox.assign"

	PermAnalyticsRead   = "analytics.read"
	PermAnalyticsExport = "analytics.export"

	PermAttributionRead  = "attribution.read"
	PermAttributionWrite = "attribution.write"

	PermBillingRead  = "billing.read"
	PermBillingWrite = "billing.write"

	PermAIRead  = "ai.read"
	PermAIWrite = "ai.write"

	PermTenantAll      = "tenant.*"
	PermCatalogAll     = "catalog.*"
	PermPublishAll     = "publish.*"
	PermAdsAll         = "ads.*"
	PermInboxAll       = "inbox.*"
	PermAnalyticsAll   = "analytics.*"
	PermAttributionAll = "attribution.*"
	PermBillingAll     = "billing.*"
	PermAIAll          = "ai.*"
)

// Set is a set of permission keys.
type Set map[string]struct{}

// Contains reports whether perm is in the set.
func (s Set) Contains(perm string) bool {
	_, ok := s[perm]
	return ok
}

func newSet(perms ...string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// roleGrants is the base grant table. Populated once at init and never
// mutated afterwards; Effective always returns a copy. OWNER is absent on
// purpose: it bypasses permission checks entirely.
var roleGrants = map[string]Set{
	RoleAdmin: newSet(
		PermTenantAll,
		PermCatalogAll,
		PermPublishAll,
		PermAdsAll,
		PermInboxAll,
		PermAnalyticsAll,
		PermAttributionAll,
		PermBillingAll,
		PermAIAll,
	),
	RoleManager: newSet(
		PermTenantRead,
		PermTenantMembersRead,
		PermTenantInvitesManage,
		PermCatalogAll,
		PermPublishAll,
		PermAdsAll,
		PermInboxAll,
		PermAnalyticsAll,
		PermAttributionAll,
		PermAIAll,
		// billing stays read-only unless granted via membership extras
		PermBillingRead,
	),
	RoleStaff: newSet(
		PermTenantRead,
		PermCatalogRead,
		PermPublishRead,
		PermInboxAll,
		PermAnalyticsRead,
		PermAIRead,
	),
}

// NormalizeRole uppercases and trims a role label.
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// Effective returns the union of the role's base grants and the membership's
// extra grants. The result is a fresh set; the base table is never exposed.
func Effective(role string, extras []string) Set {
	base := roleGrants[NormalizeRole(role)]

	out := make(Set, len(base)+len(extras))
	for p := range base {
		out[p] = struct{}{}
	}
	for _, p := range extras {
		p = strings.TrimSpace(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// hasDomainWildcard reports whether grants satisfies required, either exactly
// or through the domain wildcard ("tenant.*" covers "tenant.members.read").
func hasDomainWildcard(grants Set, required string) bool {
	if grants.Contains(required) {
		return true
	}
	idx := strings.Index(required, ".")
	if idx <= 0 {
		return false
	}
	return grants.Contains(required[:idx] + ".*")
}

// IsPermitted reports whether a membership with the given role and effective
// grants may perform the required permission. OWNER is always allowed.
func IsPermitted(role string, grants Set, required string) bool {
	if NormalizeRole(role) == RoleOwner {
		return true
	}
	return hasDomainWildcard(grants, required)
}
