package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusLog is the append-only audit note written with every booking
// status change. Rows are never updated or deleted.
type StatusLog struct {
	ID         uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	BookingID  uint      `gorm:"index" json:"booking_id,omitempty"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	ActorID    uint      `json:"actor_id,omitempty"`
	ActorRole  string    `json:"actor_role,omitempty"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
}
