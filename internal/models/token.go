package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of a short lived access token.
type AccessClaims struct {
	UserID string   `json:"userId"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a long lived refresh token. It carries no role so a
// refresh token can never stand in for an access token.
type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenPair is minted at login. Only the refresh token's hash is persisted.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
