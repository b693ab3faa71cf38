package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

// Roles form a strict hierarchy. Viewers read experiment data, operators
// additionally drive the assignment and event write paths, admins manage
// experiment lifecycle and deletion.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var roleLevels = map[string]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// EffectiveRole collapses a claim's role list to the single highest known
// role, or "" when none of the entries map to a role the service grants.
// The session endpoint reports this so dashboards can hide controls the
// user cannot reach.
func EffectiveRole(roles []string) string {
	best := ""
	bestLevel := 0
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if level := roleLevels[normalized]; level > bestLevel {
			best = normalized
			bestLevel = level
		}
	}
	return best
}

func HasAtLeast(roles []string, required string) bool {
	requiredLevel := roleLevels[strings.ToLower(required)]
	if requiredLevel == 0 {
		return false
	}
	maxLevel := 0
	for _, role := range roles {
		level := roleLevels[strings.ToLower(strings.TrimSpace(role))]
		if level > maxLevel {
			maxLevel = level
		}
	}
	return maxLevel >= requiredLevel
}

func RequiredRoleForRequest(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer
	case http.MethodDelete:
		return RoleAdmin
	default:
		return RoleOperator
	}
}
