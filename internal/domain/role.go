package domain

import (
	"sort"
	"strings"
)

// Role is one of the closed set of account roles.
type Role string

const (
	RoleRequester  Role = "Requester"
	RoleTechnician Role = "Technician"
	RoleManager    Role = "Manager"
	RoleAdmin      Role = "Admin"
)

// ParseRole matches a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	for _, r := range []Role{RoleRequester, RoleTechnician, RoleManager, RoleAdmin} {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, true
		}
	}
	return "", false
}

// RoleSet is the set of roles held by one account.
type RoleSet map[Role]struct{}

// NewRoleSet builds a normalized set. Every account holds Requester.
func NewRoleSet(roles ...Role) RoleSet {
	set := RoleSet{RoleRequester: {}}
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set.Normalize()
}

// Normalize applies role implication: Admin stands alone, Manager implies Technician.
func (s RoleSet) Normalize() RoleSet {
	out := RoleSet{RoleRequester: {}}
	if s.Has(RoleAdmin) {
		out[RoleAdmin] = struct{}{}
		return out
	}
	if s.Has(RoleManager) {
		out[RoleManager] = struct{}{}
		out[RoleTechnician] = struct{}{}
	}
	if s.Has(RoleTechnician) {
		out[RoleTechnician] = struct{}{}
	}
	return out
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Slice returns the roles sorted by name.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings is Slice as plain strings, for storage.
func (s RoleSet) Strings() []string {
	roles := s.Slice()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// RoleSetFromStrings parses stored role names, skipping unknown ones.
func RoleSetFromStrings(names []string) RoleSet {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		if r, ok := ParseRole(n); ok {
			roles = append(roles, r)
		}
	}
	return NewRoleSet(roles...)
}

// Actor is the identity invoking an engine operation.
type Actor struct {
	ID    string
	Roles RoleSet
}

func (a Actor) IsAdmin() bool      { return a.Roles.Has(RoleAdmin) }
func (a Actor) IsManager() bool    { return a.Roles.Has(RoleManager) }
func (a Actor) IsTechnician() bool { return a.Roles.Has(RoleTechnician) }
