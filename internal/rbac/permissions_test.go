package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPermitted_OwnerBypassesEverything(t *testing.T) {
	grants := Effective(RoleOwner, nil)
	require.True(t, IsPermitted(RoleOwner, grants, PermBillingWrite))
	require.True(t, IsPermitted("owner", grants, "anything.at.all"))
}

func TestIsPermitted_AdminWildcards(t *testing.T) {
	grants := Effective(RoleAdmin, nil)

	require.True(t, IsPermitted(RoleAdmin, grants, PermTenantMembersWrite))
	require.True(t, IsPermitted(RoleAdmin, grants, PermBillingWrite))
	require.True(t, IsPermitted(RoleAdmin, grants, "catalog.import"))
}

func TestIsPermitted_StaffBaseline(t *testing.T) {
	grants := Effective(RoleStaff, nil)

	require.True(t, IsPermitted(RoleStaff, grants, PermTenantRead))
	require.True(t, IsPermitted(RoleStaff, grants, PermInboxAssign))
	require.False(t, IsPermitted(RoleStaff, grants, PermTenantMembersWrite))
	require.False(t, IsPermitted(RoleStaff, grants, PermCatalogWrite))
	require.False(t, IsPermitted(RoleStaff, grants, PermBillingRead))
}

func TestIsPermitted_ExtrasAreAdditive(t *testing.T) {
	grants := Effective(RoleStaff, []string{PermCatalogWrite, " billing.read "})

	require.True(t, IsPermitted(RoleStaff, grants, PermCatalogWrite))
	require.True(t, IsPermitted(RoleStaff, grants, PermBillingRead))
	require.False(t, IsPermitted(RoleStaff, grants, PermBillingWrite))
}

func TestIsPermitted_WildcardIsPrefixOnDomain(t *testing.T) {
	grants := Effective(RoleStaff, []string{"tenant.*"})

	require.True(t, IsPermitted(RoleStaff, grants, PermTenantInvitesManage))
	// a wildcard in one domain says nothing about another
	require.False(t, IsPermitted(RoleStaff, grants, PermAdsBudgets))
	// a required key without a domain segment never matches a wildcard
	require.False(t, IsPermitted(RoleStaff, grants, "tenant"))
}

func TestEffective_UnknownRoleIsEmpty(t *testing.T) {
	grants := Effective("INTERN", nil)
	require.Empty(t, grants)
	require.False(t, IsPermitted("INTERN", grants, PermTenantRead))
}

func TestEffective_DoesNotMutateBaseTable(t *testing.T) {
	first := Effective(RoleStaff, []string{PermBillingWrite})
	second := Effective(RoleStaff, nil)

	require.True(t, first.Contains(PermBillingWrite))
	require.False(t, second.Contains(PermBillingWrite))
}
