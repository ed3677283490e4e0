// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-dev/sentra/internal/policy"
)

func defaultMatrix(t *testing.T) *policy.Matrix {
	t.Helper()
	m, err := policy.NewMatrix(policy.DefaultGrants())
	require.NoError(t, err)
	return m
}

func TestMatrix_DefaultGrants(t *testing.T) {
	t.Parallel()
	m := defaultMatrix(t)

	cases := []struct {
		role      policy.Role
		perm      string
		permitted bool
	}{
		{policy.RoleSales, "knowledge_base", true},
		{policy.RoleSales, "log_analyzer", false},
		{policy.RoleSales, policy.PermissionAuditLogs, false},
		{policy.RoleEngineering, "knowledge_base", true},
		{policy.RoleEngineering, "log_analyzer", true},
		{policy.RoleEngineering, policy.PermissionAllPolicies, false},
		{policy.RoleSecurity, "log_analyzer", true},
		{policy.RoleSecurity, policy.PermissionAllPolicies, true},
		{policy.RoleSecurity, policy.PermissionAuditLogs, false},
		{policy.RoleAdmin, "knowledge_base", true},
		{policy.RoleAdmin, "log_analyzer", true},
		{policy.RoleAdmin, policy.PermissionAuditLogs, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.permitted, m.Permitted(tc.role, tc.perm),
			"role=%s perm=%s", tc.role, tc.perm)
	}
}

func TestMatrix_UnknownRoleHasNoPermissions(t *testing.T) {
	t.Parallel()
	m := defaultMatrix(t)

	assert.False(t, m.Permitted(policy.Role("contractor"), "knowledge_base"))
	assert.False(t, m.AnyPermitted(policy.Role("contractor"), []string{"knowledge_base", "log_analyzer"}))
	assert.Nil(t, m.Permissions(policy.Role("contractor")))
}

func TestMatrix_AnyPermitted(t *testing.T) {
	t.Parallel()
	m := defaultMatrix(t)

	assert.True(t, m.AnyPermitted(policy.RoleSales, []string{"log_analyzer", "knowledge_base"}))
	assert.False(t, m.AnyPermitted(policy.RoleSales, []string{"log_analyzer"}))
}

func TestMatrix_PermittedOfPreservesOrder(t *testing.T) {
	t.Parallel()
	m := defaultMatrix(t)

	all := []string{"knowledge_base", "log_analyzer"}
	assert.Equal(t, []string{"knowledge_base"}, m.PermittedOf(policy.RoleSales, all))
	assert.Equal(t, all, m.PermittedOf(policy.RoleEngineering, all))
	assert.Equal(t, all, m.PermittedOf(policy.RoleAdmin, all))
}

func TestMatrix_PermissionsSorted(t *testing.T) {
	t.Parallel()
	m := defaultMatrix(t)

	assert.Equal(t, []string{"all_policies", "knowledge_base", "log_analyzer"},
		m.Permissions(policy.RoleSecurity))
	assert.Equal(t, []string{policy.Wildcard}, m.Permissions(policy.RoleAdmin))
}

func TestNewMatrix_RejectsUnknownRole(t *testing.T) {
	t.Parallel()

	_, err := policy.NewMatrix(map[string][]string{"superuser": {"knowledge_base"}})
	assert.Error(t, err)
}

func TestNewMatrix_RejectsEmptyPermission(t *testing.T) {
	t.Parallel()

	_, err := policy.NewMatrix(map[string][]string{"sales": {""}})
	assert.Error(t, err)
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	for _, r := range []policy.Role{policy.RoleSales, policy.RoleEngineering, policy.RoleSecurity, policy.RoleAdmin} {
		assert.True(t, r.Valid())
	}
	assert.False(t, policy.Role("").Valid())
	assert.False(t, policy.Role("Sales").Valid())
}
