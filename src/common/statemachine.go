package common

import (
	"log"
	"time"

	"promarket/src/models"
	"promarket/src/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// allowedTransitions is the booking lifecycle graph. Self-loops are
// handled separately as no-ops; anything not listed is rejected.
var allowedTransitions = map[types.BookingStatus][]types.BookingStatus{
	types.BOOKING_RFQ: {
		types.BOOKING_QUOTED,
		types.BOOKING_CANCELED,
	},
	types.BOOKING_QUOTED: {
		types.BOOKING_QUOTE_ACCEPTED,
		types.BOOKING_QUOTE_REJECTED,
		types.BOOKING_CANCELED,
	},
	types.BOOKING_QUOTE_ACCEPTED: {
		types.BOOKING_PAYMENT_PENDING,
		types.BOOKING_BOOKED,
		types.BOOKING_CANCELED,
	},
	types.BOOKING_QUOTE_REJECTED: {},
	types.BOOKING_PAYMENT_PENDING: {
		types.BOOKING_BOOKED,
		types.BOOKING_CANCELED,
	},
	types.BOOKING_BOOKED: {
		types.BOOKING_IN_PROGRESS,
		types.BOOKING_COMPLETED,
		types.BOOKING_CANCELED,
		types.BOOKING_DISPUTE,
	},
	types.BOOKING_IN_PROGRESS: {
		types.BOOKING_COMPLETED,
		types.BOOKING_CANCELED,
		types.BOOKING_DISPUTE,
	},
	types.BOOKING_COMPLETED: {},
	types.BOOKING_CANCELED:  {},
	types.BOOKING_DISPUTE: {
		types.BOOKING_COMPLETED,
		types.BOOKING_CANCELED,
		types.BOOKING_REFUNDED,
	},
	types.BOOKING_REFUNDED: {},
}

// CanTransition reports whether from → to is a legal edge. A self-loop
// is always allowed and treated as a no-op by the caller.
func CanTransition(from, to types.BookingStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// releasesBlocks lists the statuses on whose entry a booking stops
// occupying resource time. Release is tied to occupancy, not to being
// terminal, which is why quote_rejected is included.
func releasesBlocks(to types.BookingStatus) bool {
	switch to {
	case types.BOOKING_QUOTE_REJECTED, types.BOOKING_CANCELED, types.BOOKING_COMPLETED, types.BOOKING_REFUNDED:
		return true
	}
	return false
}

// Actor identifies who is invoking a transition. The zero Role is never
// valid; webhook-driven moves use SystemActor.
type Actor struct {
	ID             uint
	Role           string
	ProfessionalID uint
}

var SystemActor = Actor{Role: types.ROLE_SYSTEM}

func (a Actor) isSystem() bool { return a.Role == types.ROLE_SYSTEM }
func (a Actor) isAdmin() bool  { return a.Role == types.ROLE_ADMIN }

// authorizeActor rejects callers that are not party to the booking
// before the transition table is even consulted.
func authorizeActor(tx *gorm.DB, booking *models.Booking, actor Actor) error {
	if actor.isSystem() || actor.isAdmin() {
		return nil
	}
	if actor.ID == booking.CustomerID {
		return nil
	}
	if actor.ProfessionalID != 0 {
		if booking.ProfessionalID != nil && *booking.ProfessionalID == actor.ProfessionalID {
			return nil
		}
		if booking.ProjectID != nil {
			var project models.Project
			if err := tx.First(&project, *booking.ProjectID).Error; err != nil {
				return err
			}
			if project.ProfessionalID == actor.ProfessionalID {
				return nil
			}
		}
	}
	return types.NewAuthorizationError("you are not a party to this booking")
}

// AuthorizeBookingActor exposes the party check for read endpoints so
// booking detail reads are fenced the same way transitions are.
func AuthorizeBookingActor(tx *gorm.DB, booking *models.Booking, actor Actor) error {
	return authorizeActor(tx, booking, actor)
}

// roleAllowed applies per-edge role restrictions on top of the party
// check.
func roleAllowed(to types.BookingStatus, actor Actor, booking *models.Booking) error {
	if actor.isSystem() || actor.isAdmin() {
		return nil
	}
	switch to {
	case types.BOOKING_QUOTED:
		if actor.ProfessionalID == 0 {
			return types.NewAuthorizationError("only the professional may submit a quote")
		}
	case types.BOOKING_QUOTE_ACCEPTED, types.BOOKING_QUOTE_REJECTED:
		if actor.ID != booking.CustomerID {
			return types.NewAuthorizationError("only the customer may respond to a quote")
		}
	case types.BOOKING_IN_PROGRESS:
		if actor.ProfessionalID == 0 {
			return types.NewAuthorizationError("only the professional may start the work")
		}
	case types.BOOKING_COMPLETED:
		// A professional cannot self-certify completion.
		if actor.ID != booking.CustomerID {
			return types.NewAuthorizationError("only the customer may confirm completion")
		}
	case types.BOOKING_BOOKED, types.BOOKING_DISPUTE, types.BOOKING_REFUNDED:
		return types.NewAuthorizationError("this transition is event-driven")
	}
	return nil
}

// TransitionOptions carries the optional inputs a transition may need.
type TransitionOptions struct {
	Note   *string
	Reason *string
}

// TransitionResult reports what happened, including the client secret
// when the transition created a payment authorization.
type TransitionResult struct {
	Booking      *models.Booking
	From         types.BookingStatus
	NoOp         bool
	ClientSecret string
	// ReserveWarning is set when the status change committed but the
	// blocking ledger write failed and needs a retry.
	ReserveWarning string
}

// TransitionBooking is the single entry point for booking status
// changes. It locks the row, authorizes the actor, validates the edge,
// runs the target-specific side effects atomically with the status
// write, and appends a status log entry.
func TransitionBooking(db *gorm.DB, bookingID uint, to types.BookingStatus, actor Actor, opts *TransitionOptions) (*TransitionResult, error) {
	if opts == nil {
		opts = &TransitionOptions{}
	}
	result := &TransitionResult{}
	err := db.Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&booking, bookingID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.NewValidationError("booking %d not found", bookingID)
			}
			return err
		}
		if err := authorizeActor(tx, &booking, actor); err != nil {
			return err
		}
		from := booking.Status
		result.From = from
		if from == to {
			result.Booking = &booking
			result.NoOp = true
			return nil
		}
		if !CanTransition(from, to) {
			return types.NewConflictError("invalid transition to "+string(to), string(from))
		}
		if err := roleAllowed(to, actor, &booking); err != nil {
			return err
		}

		updates := map[string]any{"status": to}

		switch to {
		case types.BOOKING_QUOTE_ACCEPTED:
			// Authorization failure rolls the whole transition back to
			// quoted.
			booking.Status = to
			secret, err := CreateAuthorization(tx, &booking)
			if err != nil {
				return err
			}
			result.ClientSecret = secret

		case types.BOOKING_BOOKED, types.BOOKING_IN_PROGRESS:
			if booking.BookingType == types.BOOKING_TYPE_PROJECT {
				if err := ensureReserved(tx, &booking); err != nil {
					// The status change stands; the ledger write is
					// retried by the caller or the next transition.
					result.ReserveWarning = err.Error()
					log.Printf("[StateMachine] Reserve warning for booking %d: %s\n", booking.ID, err.Error())
				}
			}

		case types.BOOKING_COMPLETED:
			if from != types.BOOKING_DISPUTE {
				if err := CaptureAndTransfer(tx, &booking); err != nil {
					return err
				}
			} else {
				// Dispute resolved in the platform's favor; money does
				// not move again.
				if err := ResolveDispute(tx, booking.ID, true, "won"); err != nil {
					return err
				}
			}

		case types.BOOKING_CANCELED:
			if booking.CancelledAt == nil {
				now := time.Now()
				updates["cancelled_by"] = actor.ID
				updates["cancelled_role"] = actor.Role
				updates["cancelled_at"] = now
				if opts.Reason != nil {
					updates["cancellation_reason"] = *opts.Reason
				}
			}

		case types.BOOKING_DISPUTE:
			// Metadata is written by the payments layer from the event
			// payload before this transition is invoked.

		case types.BOOKING_REFUNDED:
			// Payment status is handled by the refund appliers.
		}

		if releasesBlocks(to) && booking.BookingType == types.BOOKING_TYPE_PROJECT {
			if err := ReleaseBookingBlocks(tx, booking.ID); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(updates).Error; err != nil {
			return err
		}
		booking.Status = to

		entry := models.StatusLog{
			BookingID:  booking.ID,
			FromStatus: string(from),
			ToStatus:   string(to),
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Note:       opts.Note,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		result.Booking = &booking
		log.Printf("[StateMachine] Booking %d: %s -> %s by %s(%d)\n", booking.ID, from, to, actor.Role, actor.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ensureReserved re-verifies the booking's window and writes the
// blocked ranges on first entry to an occupying status. Guarded by the
// tag existence check so repeated callback delivery cannot double-block.
func ensureReserved(tx *gorm.DB, booking *models.Booking) error {
	exists, err := HasBookingBlocks(tx, booking.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	window, ok := BookingWindow(booking)
	if !ok {
		return types.NewValidationError("booking %d has no scheduled window to reserve", booking.ID)
	}
	resources := BookingResourceIDs(booking)
	if len(resources) == 0 {
		return types.NewValidationError("booking %d has no assigned resources", booking.ID)
	}
	// Re-check availability at reservation time; a lost race surfaces
	// here instead of as a silent double-booking.
	for _, rid := range resources {
		busy, err := resourceBusyIntervals(tx, rid)
		if err != nil {
			return err
		}
		for _, b := range busy {
			if b.Reason == BookingBlockTag(booking.ID) {
				continue
			}
			if Overlaps(window.Start, window.ReservedEnd(), b.Start, b.End) {
				return types.NewConflictError("window no longer available for resource", b.Reason)
			}
		}
	}
	return ReserveBookingBlocks(tx, booking.ID, resources, *window)
}

// SubmitQuote attaches a quote and moves the booking from rfq to
// quoted in one transaction. Only legal while the status is exactly
// rfq.
func SubmitQuote(db *gorm.DB, bookingID uint, actor Actor, body *types.SubmitQuoteRequestBody, validUntil time.Time) (*models.Booking, error) {
	var out *models.Booking
	err := db.Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&booking, bookingID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.NewValidationError("booking %d not found", bookingID)
			}
			return err
		}
		if err := authorizeActor(tx, &booking, actor); err != nil {
			return err
		}
		if actor.ProfessionalID == 0 && !actor.isAdmin() {
			return types.NewAuthorizationError("only the professional may submit a quote")
		}
		if booking.Status != types.BOOKING_RFQ {
			return types.NewConflictError("quote may only be submitted on an open request", string(booking.Status))
		}
		breakdown := types.JSONBArray{}
		for _, line := range body.Breakdown {
			breakdown = append(breakdown, map[string]any{"label": line.Label, "amount": line.Amount})
		}
		now := time.Now()
		updates := map[string]any{
			"status":                   types.BOOKING_QUOTED,
			"quote_amount":             body.Amount,
			"quote_currency":           body.Currency,
			"quote_description":        body.Description,
			"quote_breakdown":          breakdown,
			"quote_valid_until":        validUntil,
			"quote_terms":              body.Terms,
			"quote_estimated_duration": body.EstimatedDuration,
			"quoted_at":                now,
			"quoted_by":                actor.ID,
		}
		if err := tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(updates).Error; err != nil {
			return err
		}
		entry := models.StatusLog{
			BookingID:  booking.ID,
			FromStatus: string(types.BOOKING_RFQ),
			ToStatus:   string(types.BOOKING_QUOTED),
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		booking.Status = types.BOOKING_QUOTED
		booking.QuoteAmount = &body.Amount
		booking.QuoteCurrency = &body.Currency
		booking.QuoteValidUntil = &validUntil
		booking.QuotedAt = &now
		out = &booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireStaleQuotes cancels quoted bookings whose quote validity
// deadline has passed. Run by the periodic sweep job under the system
// actor; each booking gets an audit note.
func ExpireStaleQuotes(db *gorm.DB) (int, error) {
	var stale []models.Booking
	if err := db.
		Where("status = ? AND quote_valid_until < ?", types.BOOKING_QUOTED, time.Now()).
		Find(&stale).Error; err != nil {
		return 0, err
	}
	expired := 0
	for _, b := range stale {
		note := "quote validity deadline passed"
		_, err := TransitionBooking(db, b.ID, types.BOOKING_CANCELED, SystemActor, &TransitionOptions{
			Note:   &note,
			Reason: &note,
		})
		if err != nil {
			log.Printf("[StateMachine] Could not expire booking %d: %s\n", b.ID, err.Error())
			continue
		}
		expired++
	}
	if expired > 0 {
		log.Printf("[StateMachine] Expired %d stale quotes\n", expired)
	}
	return expired, nil
}
