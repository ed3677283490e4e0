// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package policy implements role-based authorization for tool access.
//
// The permission matrix is the single source of truth: every role's tool
// set is enumerated independently in configuration, and no permission is
// ever derived from role ordering at runtime. A higher-privilege role is
// simply configured with a superset.
package policy

import (
	"slices"
	"sort"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// Role is one of the closed, ordered set of principal roles, lowest
// privilege first.
type Role string

const (
	RoleSales       Role = "sales"
	RoleEngineering Role = "engineering"
	RoleSecurity    Role = "security"
	RoleAdmin       Role = "admin"
)

// Valid reports whether the role is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSales, RoleEngineering, RoleSecurity, RoleAdmin:
		return true
	default:
		return false
	}
}

// Wildcard grants a role every tool in the registry plus all
// non-tool permissions.
const Wildcard = "*"

// Non-tool permissions gating API surfaces rather than tool handlers.
const (
	PermissionAllPolicies = "all_policies"
	PermissionAuditLogs   = "audit_logs"
)

// Matrix maps each role to its explicitly enumerated permission set.
// It is built once at startup and read-only thereafter, so concurrent
// reads need no synchronization. A rebuild is a whole-value swap by the
// owner, never an in-place mutation.
type Matrix struct {
	grants map[Role]map[string]struct{}
}

// NewMatrix builds a Matrix from configuration. Unknown role names and
// empty permission names are rejected so a configuration typo cannot
// silently grant or withhold access.
func NewMatrix(grants map[string][]string) (*Matrix, error) {
	m := &Matrix{grants: make(map[Role]map[string]struct{}, len(grants))}
	for roleName, perms := range grants {
		role := Role(roleName)
		if !role.Valid() {
			return nil, sentraerr.Errorf(sentraerr.CodePolicyMatrixInvalid, "unknown role %q in permission matrix", roleName)
		}
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			if p == "" {
				return nil, sentraerr.Errorf(sentraerr.CodePolicyMatrixInvalid, "empty permission for role %q", roleName)
			}
			set[p] = struct{}{}
		}
		m.grants[role] = set
	}
	return m, nil
}

// Permitted reports whether the role may use the named tool or permission.
// An unknown role has no permissions.
func (m *Matrix) Permitted(role Role, perm string) bool {
	set, ok := m.grants[role]
	if !ok {
		return false
	}
	if _, ok := set[Wildcard]; ok {
		return true
	}
	_, ok = set[perm]
	return ok
}

// AnyPermitted reports whether the role may use at least one of the given
// tools. The pipeline uses it to fail fast before spending a reasoning
// call on a principal that could never invoke anything.
func (m *Matrix) AnyPermitted(role Role, tools []string) bool {
	return slices.ContainsFunc(tools, func(t string) bool {
		return m.Permitted(role, t)
	})
}

// PermittedOf filters the given tools down to those the role may use,
// preserving input order.
func (m *Matrix) PermittedOf(role Role, tools []string) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		if m.Permitted(role, t) {
			out = append(out, t)
		}
	}
	return out
}

// Permissions returns the role's full permission set sorted for stable
// presentation. The wildcard is returned as-is.
func (m *Matrix) Permissions(role Role) []string {
	set, ok := m.grants[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DefaultGrants returns the shipped permission matrix. Every role is
// enumerated independently; admin's superset is spelled out via the
// wildcard rather than inherited.
func DefaultGrants() map[string][]string {
	return map[string][]string{
		string(RoleSales):       {"knowledge_base"},
		string(RoleEngineering): {"knowledge_base", "log_analyzer"},
		string(RoleSecurity):    {"knowledge_base", "log_analyzer", "all_policies"},
		string(RoleAdmin):       {Wildcard},
	}
}
