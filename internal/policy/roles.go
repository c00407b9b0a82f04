package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical actor roles recognized by the tool catalog.
const (
	RoleDispatcher = "dispatcher"
	RoleTechnician = "technician"
	RoleAudit      = "audit"
	RoleSystem     = "system"
	RoleAgent      = "agent"
	RoleCustomer   = "customer"
	RoleApprover   = "approver"
	RoleQA         = "qa"
	RoleFinance    = "finance"
	RoleAdmin      = "admin"
)

var canonicalRoles = map[string]struct{}{
	RoleDispatcher: {},
	RoleTechnician: {},
	RoleAudit:      {},
	RoleSystem:     {},
	RoleAgent:      {},
	RoleCustomer:   {},
	RoleApprover:   {},
	RoleQA:         {},
	RoleFinance:    {},
	RoleAdmin:      {},
}

// roleAliases collapses synonyms onto canonical roles. Frozen: the
// table is package data, never mutated at runtime.
var roleAliases = map[string]string{
	"tech":             RoleTechnician,
	"dispatcher_admin": RoleDispatcher,
	"assistant":        RoleDispatcher,
	"bot":              RoleDispatcher,
}

// UnknownRoleError is returned when a supplied role cannot be
// normalized onto the canonical set.
type UnknownRoleError struct {
	Supplied string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("role %q is not a recognized role; allowed roles: %s",
		e.Supplied, strings.Join(CanonicalRoles(), ", "))
}

// NormalizeRole lowercases, trims and de-aliases the supplied role.
func NormalizeRole(role string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if normalized == "" {
		return "", &UnknownRoleError{Supplied: role}
	}
	if canonical, ok := roleAliases[normalized]; ok {
		normalized = canonical
	}
	if _, ok := canonicalRoles[normalized]; !ok {
		return "", &UnknownRoleError{Supplied: role}
	}
	return normalized, nil
}

// CanonicalRoles returns the sorted canonical role set.
func CanonicalRoles() []string {
	roles := make([]string, 0, len(canonicalRoles))
	for role := range canonicalRoles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
