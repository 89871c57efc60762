package models

import (
	"promarket/src/types"
	"time"
)

type Professional struct {
	ID              uint    `gorm:"primarykey" json:"id"`
	UserID          uint    `json:"user_id,omitempty"`
	CompanyName     string  `json:"company_name,omitempty"`
	Slug            string  `gorm:"uniqueIndex" json:"slug,omitempty"`
	About           *string `json:"about,omitempty"`
	ServiceTypes    types.JSONBArray `gorm:"type:jsonb" json:"service_types,omitempty"`
	VATNumber       *string `json:"vat_number,omitempty"`
	IDProofKey      *string `json:"-"`
	StripeAccountId *string `json:"-"`
	PaymentVerified bool    `json:"payment_verified,omitempty"`
	// Resource record used when a project has no explicit team; every
	// professional gets one on registration.
	OwnResourceID *uint `json:"own_resource_id,omitempty"`

	User      *User      `gorm:"foreignKey:user_id" json:"-"`
	Employees []Employee `gorm:"foreignKey:professional_id" json:"employees,omitempty"`
	Projects  []Project  `gorm:"foreignKey:professional_id" json:"projects,omitempty"`

	types.Timestamps
}

// Employee is a schedulable resource: either a team member or the
// professional's own calendar record.
type Employee struct {
	ID             uint    `gorm:"primarykey" json:"id"`
	ProfessionalID uint    `json:"professional_id,omitempty"`
	Name           string  `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	IsOwner        bool    `json:"is_owner,omitempty"`

	BlockedRanges []BlockedRange `gorm:"foreignKey:resource_id" json:"blocked_ranges,omitempty"`

	types.Timestamps
}

// BlockedRange marks a resource's calendar as unavailable. Booking-
// derived entries carry a "project-booking:<id>" reason tag and are
// released in bulk by that tag; manual entries are free text and are
// never auto-released.
type BlockedRange struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	ResourceID uint      `gorm:"index" json:"resource_id,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Reason     string    `gorm:"index" json:"reason,omitempty"`

	types.Timestamps
}
