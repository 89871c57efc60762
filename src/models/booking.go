package models

import (
	"promarket/src/types"
	"time"
)

// Booking is the central entity: it moves through the rfq → quoted →
// quote_accepted → payment_pending → booked → in_progress → completed
// lifecycle while its payment fields track money movement separately.
type Booking struct {
	ID             uint                `gorm:"primarykey" json:"id"`
	CustomerID     uint                `json:"customer_id,omitempty"`
	ProfessionalID *uint               `json:"professional_id,omitempty"`
	ProjectID      *uint               `json:"project_id,omitempty"`
	BookingType    types.BookingType   `json:"booking_type,omitempty"`
	Status         types.BookingStatus `gorm:"default:'rfq'" json:"status,omitempty"`

	// RFQ data as submitted by the customer.
	ServiceType     string           `json:"service_type,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Answers         types.JSONBArray `gorm:"type:jsonb" json:"answers,omitempty"`
	RequestedDate   *time.Time       `json:"requested_date,omitempty"`
	RequestedTime   *string          `json:"requested_time,omitempty"`
	Urgency         types.UrgencyLevel `gorm:"default:'normal'" json:"urgency,omitempty"`
	BudgetRange     *string          `json:"budget_range,omitempty"`
	Attachments     types.JSONBArray `gorm:"type:jsonb" json:"attachments,omitempty"`
	ServiceAddress  *string          `json:"service_address,omitempty"`
	ServiceGeo      *types.Metadata  `gorm:"type:jsonb" json:"-"`
	OwnBlockedDates types.JSONBArray `gorm:"type:jsonb" json:"own_blocked_dates,omitempty"`
	VariantIndex    *int             `json:"variant_index,omitempty"`

	// Quote, present once a professional has quoted.
	QuoteAmount            *float64         `json:"quote_amount,omitempty"`
	QuoteCurrency          *string          `json:"quote_currency,omitempty"`
	QuoteDescription       *string          `json:"quote_description,omitempty"`
	QuoteBreakdown         types.JSONBArray `gorm:"type:jsonb" json:"quote_breakdown,omitempty"`
	QuoteValidUntil        *time.Time       `json:"quote_valid_until,omitempty"`
	QuoteTerms             *string          `json:"quote_terms,omitempty"`
	QuoteEstimatedDuration *string          `json:"quote_estimated_duration,omitempty"`
	QuotedAt               *time.Time       `json:"quoted_at,omitempty"`
	QuotedBy               *uint            `json:"quoted_by,omitempty"`

	// Reserved window. Execution end is the work-finish instant; the
	// buffer end extends the reservation for cleanup/travel.
	ScheduledStartDate        *time.Time          `json:"scheduled_start_date,omitempty"`
	ScheduledExecutionEndDate *time.Time          `json:"scheduled_execution_end_date,omitempty"`
	ScheduledBufferStartDate  *time.Time          `json:"scheduled_buffer_start_date,omitempty"`
	ScheduledBufferEndDate    *time.Time          `json:"scheduled_buffer_end_date,omitempty"`
	ScheduledBufferUnit       *types.DurationUnit `json:"scheduled_buffer_unit,omitempty"`
	ScheduledStartTime        *string             `json:"scheduled_start_time,omitempty"`
	ScheduledEndTime          *string             `json:"scheduled_end_time,omitempty"`
	AssignedTeamMembers       types.JSONBArray    `gorm:"type:jsonb" json:"assigned_team_members,omitempty"`

	// Payment coordination fields.
	PaymentStatus       types.PaymentStatus `gorm:"default:'pending'" json:"payment_status,omitempty"`
	PaymentIntentId     *string             `json:"-"`
	PaymentClientSecret *string             `json:"-"`
	ChargeId            *string             `json:"-"`
	TransferId          *string             `json:"-"`
	RefundId            *string             `json:"-"`
	AuthorizedAt        *time.Time          `json:"authorized_at,omitempty"`
	CapturedAt          *time.Time          `json:"captured_at,omitempty"`
	RefundedAt          *time.Time          `json:"refunded_at,omitempty"`
	DisputeReason       *string             `json:"dispute_reason,omitempty"`
	DisputeAmount       *float64            `json:"dispute_amount,omitempty"`
	DisputeStatus       *string             `json:"dispute_status,omitempty"`
	RefundReason        *string             `json:"refund_reason,omitempty"`
	RefundSource        *string             `json:"refund_source,omitempty"`
	RefundNotes         *string             `json:"refund_notes,omitempty"`

	// Cancellation metadata, set once and immutable after.
	CancelledBy        *uint      `json:"cancelled_by,omitempty"`
	CancelledRole      *string    `json:"cancelled_role,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	Metadata *types.Metadata `gorm:"type:jsonb" json:"-"`

	Customer     *User         `gorm:"foreignKey:customer_id" json:"customer,omitempty"`
	Professional *Professional `gorm:"foreignKey:professional_id" json:"professional,omitempty"`
	Project      *Project      `gorm:"foreignKey:project_id" json:"project,omitempty"`
	StatusLogs   []StatusLog   `gorm:"foreignKey:booking_id" json:"status_logs,omitempty"`

	types.Timestamps
}
