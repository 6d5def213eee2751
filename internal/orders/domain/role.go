package domain

import (
	"fmt"
	"strings"
)

// Role is an actor role recognized by the workflow gating rules.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReviewer  Role = "reviewer"
	RoleAppraiser Role = "appraiser"
	RoleClient    Role = "client"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:     {},
	RoleReviewer:  {},
	RoleAppraiser: {},
	RoleClient:    {},
}

// ParseRole validates a raw role string against the closed role set.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownRoles[role]; !ok {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// PrimaryRole picks the most privileged workflow role from a JWT roles claim.
// Tokens may carry several roles; gating always evaluates the strongest one.
func PrimaryRole(roles []string) (Role, bool) {
	ranked := []Role{RoleAdmin, RoleReviewer, RoleAppraiser, RoleClient}
	held := make(map[Role]struct{}, len(roles))
	for _, raw := range roles {
		if role, err := ParseRole(raw); err == nil {
			held[role] = struct{}{}
		}
	}
	for _, candidate := range ranked {
		if _, ok := held[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}
