package models

import "github.com/golang-jwt/jwt/v5"

// Role values as issued by the identity provider. Role computation itself is
// external; we only honor what the token carries.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleCreator = "CREATOR"
)

// JWTClaims is the validated identity attached to a request.
type JWTClaims struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	CreatorID string `json:"creatorId,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessCreator reports whether the actor may touch the given creator's
// library. Admins and managers see everything; creators only themselves.
func (c *JWTClaims) CanAccessCreator(creatorID string) bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case RoleAdmin, RoleManager:
		return true
	case RoleCreator:
		return c.CreatorID != "" && c.CreatorID == creatorID
	default:
		return false
	}
}
