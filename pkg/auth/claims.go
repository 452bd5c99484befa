package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/enums"
)

// AdminTokenPayload captures the data available when minting an admin JWT.
type AdminTokenPayload struct {
	AdminID uuid.UUID
	Email   string
	Role    enums.AdminRole
	JTI     string
}

// AdminClaims is the typed JWT presented on /api/v1/admin routes.
type AdminClaims struct {
	AdminID uuid.UUID       `json:"admin_id"`
	Email   string          `json:"email,omitempty"`
	Role    enums.AdminRole `json:"role"`
	jwt.RegisteredClaims
}
