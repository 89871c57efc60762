package models

import (
	"promarket/src/types"
	"time"
)

// WebhookEvent is the durability record behind at-most-once processing
// of payment-provider callbacks. EventID is the processor-assigned id
// and doubles as the idempotency key: the first insert wins, redeliveries
// of processed/processing events are skipped, and failed events stay
// re-claimable until they expire.
type WebhookEvent struct {
	EventID       string                   `gorm:"primarykey" json:"event_id"`
	Type          string                   `json:"type,omitempty"`
	Status        types.WebhookEventStatus `gorm:"default:'processing'" json:"status,omitempty"`
	Attempts      uint                     `gorm:"default:1" json:"attempts,omitempty"`
	LastError     *string                  `json:"last_error,omitempty"`
	FirstSeenAt   time.Time                `gorm:"autoCreateTime" json:"first_seen_at,omitempty"`
	LastAttemptAt time.Time                `gorm:"autoUpdateTime" json:"last_attempt_at,omitempty"`
	ProcessedAt   *time.Time               `json:"processed_at,omitempty"`
	ExpiresAt     time.Time                `gorm:"index" json:"expires_at,omitempty"`
}
