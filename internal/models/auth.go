package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the access token payload issued by the platform's
// authentication service.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Principal is the caller a request acts on behalf of.
type Principal struct {
	ID          string
	Username    string
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal holding the given permission codes.
func NewPrincipal(id string, permissions ...string) *Principal {
	p := &Principal{ID: id, Permissions: make(map[string]struct{}, len(permissions))}
	for _, perm := range permissions {
		p.Permissions[perm] = struct{}{}
	}
	return p
}

// PrincipalFromClaims converts validated claims into a principal.
func PrincipalFromClaims(claims *JWTClaims) *Principal {
	if claims == nil {
		return nil
	}
	p := NewPrincipal(claims.UserID, claims.Permissions...)
	p.Username = claims.Username
	return p
}

// Authenticated reports whether the principal identifies a user.
func (p *Principal) Authenticated() bool {
	return p != nil && p.ID != ""
}

// HasPerms reports whether the principal holds every listed permission. An
// empty list is always satisfied.
func (p *Principal) HasPerms(perms ...string) bool {
	for _, perm := range perms {
		if p == nil {
			return false
		}
		if _, ok := p.Permissions[perm]; !ok {
			return false
		}
	}
	return true
}
