package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/nokasa/pickup-backend/pkg/enums"
)

// Principal is the verified identity behind a bearer token.
type Principal struct {
	EntityID   int64
	EntityType enums.EntityType
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	EntityID   int64            `json:"entityId"`
	EntityType enums.EntityType `json:"entityType"`
	jwt.RegisteredClaims
}

func (c AccessTokenClaims) Principal() Principal {
	return Principal{EntityID: c.EntityID, EntityType: c.EntityType}
}
