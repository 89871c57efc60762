package models

import (
	"promarket/src/types"
	"time"
)

type User struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	Name          string          `json:"name,omitempty"`
	Email         string          `json:"email,omitempty"`
	Role          string          `gorm:"default:'customer'" json:"role,omitempty"`
	UID           string          `json:"uid,omitempty"`
	EmailVerified bool            `json:"email_verified,omitempty"`
	PhoneVerified bool            `json:"phone_verified,omitempty"`
	Phone         *string         `json:"phone,omitempty"`
	VerifiedAt    time.Time       `json:"verified_at,omitempty"`
	StripeCustomerId *string      `json:"-"`
	Metadata      *types.Metadata `gorm:"type:jsonb"`

	Bookings     []Booking     `gorm:"foreignKey:customer_id" json:"bookings,omitempty"`
	Professional *Professional `gorm:"foreignKey:user_id" json:"professional,omitempty"`

	types.Timestamps
}
