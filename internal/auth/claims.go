package auth

import (
	"context"
	"slices"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Scopes  []string `json:"scopes"`
}

// ContextKey is used for storing claims in request context.
type ContextKey string

const (
	ClaimsKey ContextKey = "claims"
)

// Roles
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// Scopes
const (
	ScopeRead      = "read"
	ScopeStimulate = "stimulate"
)

var (
	validRoles  = []string{RoleViewer, RoleOperator}
	validScopes = []string{ScopeRead, ScopeStimulate}
)

// HasScopes reports whether the claims carry every required scope.
func (c *Claims) HasScopes(required ...string) bool {
	if c == nil {
		return false
	}
	for _, s := range required {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// HasAnyRole reports whether the claims carry one of the roles. No roles means no requirement.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if c == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if slices.Contains(c.Roles, r) {
			return true
		}
	}
	return false
}

// ClaimsFromContext extracts claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
