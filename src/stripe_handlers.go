package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"promarket/src/common"
	"promarket/src/db"
	"promarket/src/models"
	"promarket/src/types"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

// bookingForIntent resolves the booking a payment event refers to,
// preferring the booking_id stamped into the intent metadata.
func bookingForIntent(tx *gorm.DB, intentID string, metadata map[string]string) (*models.Booking, error) {
	if raw, ok := metadata["booking_id"]; ok {
		if id, err := strconv.Atoi(raw); err == nil {
			var booking models.Booking
			if err := tx.First(&booking, uint(id)).Error; err == nil {
				return &booking, nil
			}
		}
	}
	var booking models.Booking
	if err := tx.Where("payment_intent_id = ?", intentID).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func handlePaymentIntentEvent(event *stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return err
	}
	conn := db.GetDb()
	booking, err := bookingForIntent(conn, pi.ID, pi.Metadata)
	if err != nil {
		log.Printf("[StripeEvent] No booking for intent %s: %s\n", pi.ID, err.Error())
		return err
	}

	switch event.Type {
	case "payment_intent.amount_capturable_updated":
		// Manual-capture authorization succeeded. The status guard makes
		// redelivery a no-op.
		changed, err := common.MarkPaymentAuthorized(conn, booking.ID)
		if err != nil {
			return err
		}
		if changed {
			if _, err := common.TransitionBooking(conn, booking.ID, types.BOOKING_BOOKED, common.SystemActor, nil); err != nil {
				if types.IsConflictError(err) {
					log.Printf("[StripeEvent] Booking %d not movable to booked: %s\n", booking.ID, err.Error())
					return nil
				}
				return err
			}
			go common.NotifyBookingStatus(conn, booking, booking.Status, types.BOOKING_BOOKED)
		}

	case "payment_intent.succeeded":
		// Fires on capture; the capture path already records the charge,
		// so this is only a consistency backstop.
		return conn.Model(&models.Booking{}).
			Where("id = ? AND payment_status = ?", booking.ID, types.PAYMENT_AUTHORIZED).
			Update("payment_status", types.PAYMENT_CAPTURED).Error

	case "payment_intent.payment_failed":
		changed, err := common.MarkPaymentFailed(conn, booking.ID)
		if err != nil {
			return err
		}
		if changed && booking.Status == types.BOOKING_QUOTE_ACCEPTED {
			if _, err := common.TransitionBooking(conn, booking.ID, types.BOOKING_PAYMENT_PENDING, common.SystemActor, nil); err != nil && !types.IsConflictError(err) {
				return err
			}
		}

	case "payment_intent.canceled":
		// Authorized holds that get canceled kill the booking; a merely
		// failed payment goes back to payment_pending for retry.
		target := types.BOOKING_PAYMENT_PENDING
		if booking.PaymentStatus == types.PAYMENT_AUTHORIZED {
			target = types.BOOKING_CANCELED
		}
		note := "payment authorization canceled by processor"
		if _, err := common.TransitionBooking(conn, booking.ID, target, common.SystemActor, &common.TransitionOptions{Note: &note, Reason: &note}); err != nil {
			if types.IsConflictError(err) {
				log.Printf("[StripeEvent] Booking %d: %s\n", booking.ID, err.Error())
				return nil
			}
			return err
		}
	}
	return nil
}

func handleChargeRefunded(event *stripe.Event) error {
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return err
	}
	conn := db.GetDb()
	intentID := ""
	if ch.PaymentIntent != nil {
		intentID = ch.PaymentIntent.ID
	}
	booking, err := bookingForIntent(conn, intentID, ch.Metadata)
	if err != nil {
		log.Printf("[StripeEvent] No booking for charge %s: %s\n", ch.ID, err.Error())
		return err
	}
	full := ch.AmountRefunded >= ch.Amount
	if !full {
		return conn.Model(&models.Booking{}).
			Where("id = ?", booking.ID).
			Update("payment_status", types.PAYMENT_PARTIALLY_REFUNDED).Error
	}
	if err := conn.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]any{
		"payment_status": types.PAYMENT_REFUNDED,
	}).Error; err != nil {
		return err
	}
	note := "charge fully refunded"
	if _, err := common.TransitionBooking(conn, booking.ID, types.BOOKING_REFUNDED, common.SystemActor, &common.TransitionOptions{Note: &note}); err != nil {
		if types.IsConflictError(err) {
			// Booking is not in dispute; the payment record carries the
			// refund and any blocks are released below.
			log.Printf("[StripeEvent] Booking %d payment refunded while %s\n", booking.ID, booking.Status)
			return conn.Transaction(func(tx *gorm.DB) error {
				return common.ReleaseBookingBlocks(tx, booking.ID)
			})
		}
		return err
	}
	return nil
}

func handleDisputeEvent(event *stripe.Event) error {
	var dp stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dp); err != nil {
		return err
	}
	conn := db.GetDb()
	intentID := ""
	if dp.PaymentIntent != nil {
		intentID = dp.PaymentIntent.ID
	}
	booking, err := bookingForIntent(conn, intentID, dp.Metadata)
	if err != nil {
		log.Printf("[StripeEvent] No booking for dispute %s: %s\n", dp.ID, err.Error())
		return err
	}

	switch event.Type {
	case "charge.dispute.created":
		if err := common.MarkPaymentDisputed(conn, booking.ID, string(dp.Reason), float64(dp.Amount)/100, string(dp.Status)); err != nil {
			return err
		}
		note := "chargeback opened by payer"
		if _, err := common.TransitionBooking(conn, booking.ID, types.BOOKING_DISPUTE, common.SystemActor, &common.TransitionOptions{Note: &note}); err != nil {
			if types.IsConflictError(err) {
				log.Printf("[StripeEvent] Booking %d not movable to dispute: %s\n", booking.ID, err.Error())
				return nil
			}
			return err
		}

	case "charge.dispute.closed":
		won := dp.Status == stripe.DisputeStatusWon
		target := types.BOOKING_REFUNDED
		note := "dispute resolved against the platform"
		if won {
			target = types.BOOKING_COMPLETED
			note = "dispute resolved in the platform's favor"
		}
		if err := common.ResolveDispute(conn, booking.ID, won, string(dp.Status)); err != nil {
			return err
		}
		if _, err := common.TransitionBooking(conn, booking.ID, target, common.SystemActor, &common.TransitionOptions{Note: &note}); err != nil {
			if types.IsConflictError(err) {
				log.Printf("[StripeEvent] Booking %d dispute close: %s\n", booking.ID, err.Error())
				return nil
			}
			return err
		}
	}
	return nil
}

func handleAccountUpdated(event *stripe.Event) error {
	var acc stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &acc); err != nil {
		return err
	}
	conn := db.GetDb()
	return conn.Model(&models.Professional{}).
		Where("stripe_account_id = ?", acc.ID).
		Update("payment_verified", acc.ChargesEnabled && acc.PayoutsEnabled).Error
}

func handleAccountDeauthorized(event *stripe.Event) error {
	// The connect application was disconnected; the account id rides on
	// the event envelope, not the payload.
	if event.Account == "" {
		return nil
	}
	conn := db.GetDb()
	return conn.Model(&models.Professional{}).
		Where("stripe_account_id = ?", event.Account).
		Update("payment_verified", false).Error
}

func handleTransferCreated(event *stripe.Event) error {
	var tr stripe.Transfer
	if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
		return err
	}
	if raw, ok := tr.Metadata["booking_id"]; ok {
		if id, err := strconv.Atoi(raw); err == nil {
			conn := db.GetDb()
			return conn.Model(&models.Booking{}).
				Where("id = ? AND transfer_id IS NULL", uint(id)).
				Update("transfer_id", tr.ID).Error
		}
	}
	return nil
}

func stripeWebhookRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s %s\n", event.ID, event.Type)

		conn := db.GetDb()
		shouldProcess, err := common.ReserveWebhookEvent(conn, event.ID, string(event.Type))
		if err != nil {
			log.Printf("[StripeEvent] Error reserving event %s: %s\n", event.ID, err.Error())
			ctx.Status(http.StatusInternalServerError)
			return
		}
		if !shouldProcess {
			ctx.JSON(http.StatusOK, gin.H{"received": true, "skipped": true})
			return
		}

		var handlerErr error
		switch event.Type {
		case "payment_intent.amount_capturable_updated",
			"payment_intent.succeeded",
			"payment_intent.payment_failed",
			"payment_intent.canceled":
			handlerErr = handlePaymentIntentEvent(&event)
		case "charge.refunded":
			handlerErr = handleChargeRefunded(&event)
		case "charge.dispute.created", "charge.dispute.closed":
			handlerErr = handleDisputeEvent(&event)
		case "account.updated":
			handlerErr = handleAccountUpdated(&event)
		case "account.application.deauthorized":
			handlerErr = handleAccountDeauthorized(&event)
		case "transfer.created":
			handlerErr = handleTransferCreated(&event)
		case "payout.paid":
			log.Printf("[StripeEvent] Payout completed: %s\n", event.ID)
		default:
			log.Printf("[StripeEvent] Ignoring event type %s\n", event.Type)
		}

		if handlerErr != nil {
			if err := common.MarkWebhookEventFailed(conn, event.ID, handlerErr); err != nil {
				log.Printf("[StripeEvent] Error marking event failed: %s\n", err.Error())
			}
			// 500 asks the processor to redeliver; the failed record is
			// re-claimable then.
			ctx.Status(http.StatusInternalServerError)
			return
		}
		if err := common.MarkWebhookEventProcessed(conn, event.ID); err != nil {
			log.Printf("[StripeEvent] Error marking event processed: %s\n", err.Error())
		}
		ctx.JSON(http.StatusOK, gin.H{"received": true})
	})
	return apiv1
}
