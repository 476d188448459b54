package otp

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
)

// SendRequest asks for a login code for the phone and actor type.
type SendRequest struct {
	Phone string           `json:"phoneNumber" validate:"required"`
	Type  enums.EntityType `json:"type" validate:"required"`
}

// ResendRequest asks for a fresh login code.
type ResendRequest struct {
	Phone string           `json:"phone" validate:"required"`
	Type  enums.EntityType `json:"type" validate:"required"`
}

// VerifyRequest exchanges a login code for an access token.
type VerifyRequest struct {
	Phone string           `json:"phone" validate:"required"`
	OTP   string           `json:"otp" validate:"required"`
	Type  enums.EntityType `json:"type" validate:"required"`
}

// SendResult acknowledges a dispatched code.
type SendResult struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Profile is the actor the token was issued for.
type Profile struct {
	ID   int64            `json:"id"`
	Type enums.EntityType `json:"type"`
	Name string           `json:"name,omitempty"`
}

// VerifyResult carries the access token and the signed-in profile.
type VerifyResult struct {
	Message string  `json:"message"`
	User    Profile `json:"user"`
	Token   string  `json:"token"`
}
