package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any
type JSONBArray []any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

func (a JSONBArray) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONBArray) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Metadata map[string]any

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

// BookingType discriminates direct professional bookings from project
// (fixed-offer) bookings. Exactly one of the two references is set on
// a Booking.
type BookingType string

const (
	BOOKING_TYPE_PROFESSIONAL BookingType = "professional"
	BOOKING_TYPE_PROJECT      BookingType = "project"
)

type BookingStatus string

const (
	BOOKING_RFQ             BookingStatus = "rfq"
	BOOKING_QUOTED          BookingStatus = "quoted"
	BOOKING_QUOTE_ACCEPTED  BookingStatus = "quote_accepted"
	BOOKING_QUOTE_REJECTED  BookingStatus = "quote_rejected"
	BOOKING_PAYMENT_PENDING BookingStatus = "payment_pending"
	BOOKING_BOOKED          BookingStatus = "booked"
	BOOKING_IN_PROGRESS     BookingStatus = "in_progress"
	BOOKING_COMPLETED       BookingStatus = "completed"
	BOOKING_CANCELED        BookingStatus = "cancelled"
	BOOKING_DISPUTE         BookingStatus = "dispute"
	BOOKING_REFUNDED        BookingStatus = "refunded"
)

// PaymentStatus tracks money movement independently of BookingStatus.
type PaymentStatus string

const (
	PAYMENT_PENDING            PaymentStatus = "pending"
	PAYMENT_AUTHORIZED         PaymentStatus = "authorized"
	PAYMENT_CAPTURED           PaymentStatus = "captured"
	PAYMENT_FAILED             PaymentStatus = "failed"
	PAYMENT_DISPUTED           PaymentStatus = "disputed"
	PAYMENT_REFUNDED           PaymentStatus = "refunded"
	PAYMENT_PARTIALLY_REFUNDED PaymentStatus = "partially_refunded"
)

type WebhookEventStatus string

const (
	WEBHOOK_EVENT_PROCESSING WebhookEventStatus = "processing"
	WEBHOOK_EVENT_PROCESSED  WebhookEventStatus = "processed"
	WEBHOOK_EVENT_FAILED     WebhookEventStatus = "failed"
)

type DurationUnit string

const (
	UNIT_HOURS DurationUnit = "hours"
	UNIT_DAYS  DurationUnit = "days"
)

type ProjectStatus string

const (
	PROJECT_DRAFT     ProjectStatus = "draft"
	PROJECT_PUBLISHED ProjectStatus = "published"
	PROJECT_ARCHIVED  ProjectStatus = "archived"
)

type UrgencyLevel string

const (
	URGENCY_FLEXIBLE UrgencyLevel = "flexible"
	URGENCY_NORMAL   UrgencyLevel = "normal"
	URGENCY_URGENT   UrgencyLevel = "urgent"
)

// Actor roles as resolved by the auth middleware.
const (
	ROLE_CUSTOMER     = "customer"
	ROLE_PROFESSIONAL = "professional"
	ROLE_ADMIN        = "admin"
	ROLE_SYSTEM       = "system"
)

type RFQAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type CreateRFQRequestBody struct {
	ServiceType    string      `json:"service_type" binding:"required"`
	Description    string      `json:"description,omitempty"`
	Professional   *uint       `json:"professional,omitempty"`
	Project        *uint       `json:"project,omitempty"`
	VariantIndex   *int        `json:"variant_index,omitempty"`
	RequestedDate  string      `json:"requested_date" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	RequestedTime  *string     `json:"requested_time,omitempty"`
	Urgency        string      `json:"urgency,omitempty" binding:"omitempty,oneof=flexible normal urgent"`
	BudgetRange    string      `json:"budget_range,omitempty"`
	Answers        []RFQAnswer `json:"answers,omitempty"`
	Attachments    []string    `json:"attachments,omitempty"`
	ServiceAddress string      `json:"service_address,omitempty"`
	// Customer-declared own-calendar blocks, respected by scheduling
	// math in addition to the resource's blocked ranges.
	OwnBlockedDates []string `json:"own_blocked_dates,omitempty"`
}

type QuoteBreakdownLine struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

type SubmitQuoteRequestBody struct {
	Amount            float64              `json:"amount" binding:"required,gt=0"`
	Currency          string               `json:"currency" binding:"required"`
	Description       string               `json:"description,omitempty"`
	Breakdown         []QuoteBreakdownLine `json:"breakdown,omitempty"`
	ValidUntil        string               `json:"valid_until" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	Terms             string               `json:"terms,omitempty"`
	EstimatedDuration string               `json:"estimated_duration,omitempty"`
}

type ValidateScheduleRequestBody struct {
	Project      uint     `json:"project" binding:"required"`
	VariantIndex *int     `json:"variant_index,omitempty"`
	StartDate    string   `json:"start_date" binding:"required" time_format:"2006-01-02 15:04:05 -07:00"`
	StartTime    *string  `json:"start_time,omitempty"`
	OwnBlocked   []string `json:"own_blocked_dates,omitempty"`
}

type CancelBookingRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

type VerifyVoucherRequestBody struct {
	Code string `json:"code" binding:"required"`
}

type RejectQuoteRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

type RefundRequestBody struct {
	Amount *float64 `json:"amount,omitempty"`
	Reason string   `json:"reason" binding:"required"`
	Notes  string   `json:"notes,omitempty"`
}

type BlockedRangeRequestBody struct {
	Start  string `json:"start" binding:"required" time_format:"2006-01-02 15:04:05 -07:00"`
	End    string `json:"end" binding:"required,gtdate=Start" time_format:"2006-01-02 15:04:05 -07:00"`
	Reason string `json:"reason,omitempty"`
}

type ProjectVariantBody struct {
	Title                 string  `json:"title" binding:"required"`
	Price                 float64 `json:"price" binding:"required,gt=0"`
	ExecutionDuration     uint    `json:"execution_duration" binding:"required,gt=0"`
	ExecutionDurationUnit string  `json:"execution_duration_unit" binding:"required,oneof=hours days"`
	BufferDuration        uint    `json:"buffer_duration,omitempty"`
	BufferDurationUnit    string  `json:"buffer_duration_unit,omitempty" binding:"omitempty,oneof=hours days"`
}

type CreateProjectRequestBody struct {
	Title                   string  `json:"title" binding:"required"`
	Description             string  `json:"description,omitempty"`
	Price                   float64 `json:"price" binding:"required,gt=0"`
	Currency                string  `json:"currency" binding:"required"`
	ExecutionDuration       uint    `json:"execution_duration" binding:"required,gt=0"`
	ExecutionDurationUnit   string  `json:"execution_duration_unit" binding:"required,oneof=hours days"`
	BufferDuration          uint    `json:"buffer_duration,omitempty"`
	BufferDurationUnit      string  `json:"buffer_duration_unit,omitempty" binding:"omitempty,oneof=hours days"`
	PreparationDuration     uint    `json:"preparation_duration,omitempty"`
	PreparationDurationUnit string  `json:"preparation_duration_unit,omitempty" binding:"omitempty,oneof=hours days"`
	MinResources            uint    `json:"min_resources,omitempty"`
	AssignedResources       []uint  `json:"assigned_resources,omitempty"`

	Variants []ProjectVariantBody `json:"variants,omitempty" binding:"omitempty,dive"`
}

type CreateEmployeeRequestBody struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email,omitempty" binding:"omitempty,email"`
}

type RegisterUserRequestBody struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required"`
	Role  string `json:"role,omitempty" binding:"omitempty,oneof=customer professional"`
}

type LoginRequestBody struct {
	Email string `json:"email" binding:"required,email"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type BookingsQueryFilters struct {
	Status string `form:"status,omitempty"`
	Type   string `form:"type,omitempty" binding:"omitempty,oneof=professional project"`
}

type Claims struct {
	Username     string   `json:"username"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	Professional uint
	UID          string `json:"uid"`
	jwt.RegisteredClaims
}

type Handler func(payload string)
