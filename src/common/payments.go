package common

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"promarket/src/lib"
	"promarket/src/models"
	"promarket/src/types"
	"promarket/src/utils"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

const clientSecretCacheTTL = time.Hour

func clientSecretCacheKey(bookingID uint) string {
	return fmt.Sprintf("booking:%d:client_secret", bookingID)
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func platformFeeBps() int64 {
	raw := os.Getenv("PLATFORM_FEE_BPS")
	bps, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || bps < 0 {
		return 1000
	}
	return bps
}

// authorizationEligible lists the booking statuses from which an
// authorization may be created or retried.
func authorizationEligible(status types.BookingStatus) bool {
	switch status {
	case types.BOOKING_QUOTE_ACCEPTED, types.BOOKING_PAYMENT_PENDING, types.BOOKING_BOOKED:
		return true
	}
	return false
}

// CreateAuthorization sets up a manual-capture payment intent for the
// booking's quote amount and returns the client secret the customer
// completes payment with. An existing intent is reused unless its
// payment has failed or been refunded.
func CreateAuthorization(tx *gorm.DB, booking *models.Booking) (string, error) {
	if !authorizationEligible(booking.Status) {
		return "", types.NewConflictError("booking is not eligible for payment authorization", string(booking.Status))
	}
	if booking.QuoteAmount == nil || booking.QuoteCurrency == nil {
		return "", types.NewValidationError("booking %d has no quote to authorize against", booking.ID)
	}
	if booking.PaymentClientSecret != nil &&
		booking.PaymentStatus != types.PAYMENT_FAILED &&
		booking.PaymentStatus != types.PAYMENT_REFUNDED {
		return *booking.PaymentClientSecret, nil
	}

	var customer models.User
	if err := tx.First(&customer, booking.CustomerID).Error; err != nil {
		return "", err
	}

	sc := lib.GetStripeClient()
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(minorUnits(*booking.QuoteAmount)),
		Currency:      stripe.String(strings.ToLower(*booking.QuoteCurrency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"booking_id":  fmt.Sprintf("%d", booking.ID),
			"customer_id": fmt.Sprintf("%d", booking.CustomerID),
		},
	}
	if customer.StripeCustomerId != nil {
		params.Customer = stripe.String(*customer.StripeCustomerId)
	}
	pi, err := sc.V1PaymentIntents.Create(context.Background(), params)
	if err != nil {
		log.Printf("[Payments] Error creating payment intent for booking %d: %s\n", booking.ID, err.Error())
		return "", types.NewDependencyError("stripe", err)
	}

	booking.PaymentIntentId = &pi.ID
	booking.PaymentClientSecret = &pi.ClientSecret
	booking.PaymentStatus = types.PAYMENT_PENDING
	if err := tx.Model(&models.Booking{}).
		Where("id = ?", booking.ID).
		Updates(map[string]any{
			"payment_intent_id":     pi.ID,
			"payment_client_secret": pi.ClientSecret,
			"payment_status":        types.PAYMENT_PENDING,
		}).Error; err != nil {
		return "", err
	}

	if rdb := lib.GetRedisClient(); rdb != nil {
		if err := rdb.Set(context.Background(), clientSecretCacheKey(booking.ID), pi.ClientSecret, clientSecretCacheTTL).Err(); err != nil {
			log.Printf("[Payments] Could not cache client secret: %s\n", err.Error())
		}
	}
	log.Printf("[Payments] Created authorization %s for booking %d\n", pi.ID, booking.ID)
	return pi.ClientSecret, nil
}

// CaptureAndTransfer moves the held funds: captures the payment intent
// and transfers the amount minus the platform fee to the professional's
// payout account. Only legal while the payment is authorized.
func CaptureAndTransfer(tx *gorm.DB, booking *models.Booking) error {
	if booking.PaymentStatus == types.PAYMENT_CAPTURED {
		return nil
	}
	if booking.PaymentStatus != types.PAYMENT_AUTHORIZED {
		return types.NewConflictError("payment not capturable", string(booking.PaymentStatus))
	}
	if booking.PaymentIntentId == nil {
		return types.NewValidationError("booking %d has no payment intent", booking.ID)
	}

	sc := lib.GetStripeClient()
	pi, err := sc.V1PaymentIntents.Capture(context.Background(), *booking.PaymentIntentId, &stripe.PaymentIntentCaptureParams{})
	if err != nil {
		log.Printf("[Payments] Error capturing intent %s: %s\n", *booking.PaymentIntentId, err.Error())
		return types.NewDependencyError("stripe", err)
	}

	updates := map[string]any{
		"payment_status": types.PAYMENT_CAPTURED,
		"captured_at":    time.Now(),
	}
	booking.PaymentStatus = types.PAYMENT_CAPTURED
	if pi.LatestCharge != nil {
		updates["charge_id"] = pi.LatestCharge.ID
		booking.ChargeId = &pi.LatestCharge.ID
	}

	destination := professionalPayoutAccount(tx, booking)
	if destination != nil {
		amount := pi.Amount
		fee := utils.PlatformFee(amount, platformFeeBps())
		tr, err := sc.V1Transfers.Create(context.Background(), &stripe.TransferCreateParams{
			Amount:      stripe.Int64(amount - fee),
			Currency:    stripe.String(string(pi.Currency)),
			Destination: stripe.String(*destination),
			Metadata: map[string]string{
				"booking_id": fmt.Sprintf("%d", booking.ID),
			},
		})
		if err != nil {
			// Funds are captured; the transfer can be replayed by the
			// transfer reconciliation job, so do not fail the capture.
			log.Printf("[Payments] Error creating transfer for booking %d: %s\n", booking.ID, err.Error())
		} else {
			updates["transfer_id"] = tr.ID
			booking.TransferId = &tr.ID
		}
	}

	if err := tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(updates).Error; err != nil {
		return err
	}
	log.Printf("[Payments] Captured %s for booking %d\n", pi.ID, booking.ID)
	return nil
}

// ReplayPendingTransfers retries the payout for captured bookings whose
// transfer failed at capture time. Run by the periodic sweep; bookings
// without a payout account are skipped until the professional completes
// onboarding.
func ReplayPendingTransfers(db *gorm.DB) (int, error) {
	var pending []models.Booking
	if err := db.
		Where("payment_status = ? AND transfer_id IS NULL AND payment_intent_id IS NOT NULL", types.PAYMENT_CAPTURED).
		Limit(50).
		Find(&pending).Error; err != nil {
		return 0, err
	}
	replayed := 0
	sc := lib.GetStripeClient()
	for i := range pending {
		b := &pending[i]
		destination := professionalPayoutAccount(db, b)
		if destination == nil {
			continue
		}
		pi, err := sc.V1PaymentIntents.Retrieve(context.Background(), *b.PaymentIntentId, &stripe.PaymentIntentRetrieveParams{})
		if err != nil {
			log.Printf("[Payments] Error retrieving intent %s: %s\n", *b.PaymentIntentId, err.Error())
			continue
		}
		fee := utils.PlatformFee(pi.Amount, platformFeeBps())
		tr, err := sc.V1Transfers.Create(context.Background(), &stripe.TransferCreateParams{
			Amount:      stripe.Int64(pi.Amount - fee),
			Currency:    stripe.String(string(pi.Currency)),
			Destination: stripe.String(*destination),
			Metadata: map[string]string{
				"booking_id": fmt.Sprintf("%d", b.ID),
			},
		})
		if err != nil {
			log.Printf("[Payments] Transfer replay failed for booking %d: %s\n", b.ID, err.Error())
			continue
		}
		if err := db.Model(&models.Booking{}).Where("id = ?", b.ID).Update("transfer_id", tr.ID).Error; err != nil {
			log.Printf("[Payments] Could not record transfer %s for booking %d: %s\n", tr.ID, b.ID, err.Error())
			continue
		}
		replayed++
	}
	if replayed > 0 {
		log.Printf("[Payments] Replayed %d pending transfers\n", replayed)
	}
	return replayed, nil
}

func professionalPayoutAccount(tx *gorm.DB, booking *models.Booking) *string {
	proID := booking.ProfessionalID
	if proID == nil && booking.ProjectID != nil {
		var project models.Project
		if err := tx.First(&project, *booking.ProjectID).Error; err != nil {
			return nil
		}
		proID = &project.ProfessionalID
	}
	if proID == nil {
		return nil
	}
	var pro models.Professional
	if err := tx.First(&pro, *proID).Error; err != nil {
		return nil
	}
	return pro.StripeAccountId
}

// ApplyFullRefund refunds the entire captured or authorized amount and
// marks the payment refunded. The caller moves the booking status.
func ApplyFullRefund(tx *gorm.DB, booking *models.Booking, reason, source, notes string) error {
	if booking.PaymentStatus == types.PAYMENT_REFUNDED {
		return nil
	}
	if booking.PaymentIntentId == nil {
		return types.NewValidationError("booking %d has no payment to refund", booking.ID)
	}
	sc := lib.GetStripeClient()
	ref, err := sc.V1Refunds.Create(context.Background(), &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(*booking.PaymentIntentId),
	})
	if err != nil {
		log.Printf("[Payments] Error refunding booking %d: %s\n", booking.ID, err.Error())
		return types.NewDependencyError("stripe", err)
	}
	booking.PaymentStatus = types.PAYMENT_REFUNDED
	return tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]any{
		"payment_status": types.PAYMENT_REFUNDED,
		"refund_id":      ref.ID,
		"refunded_at":    time.Now(),
		"refund_reason":  reason,
		"refund_source":  source,
		"refund_notes":   notes,
	}).Error
}

// ApplyPartialRefund refunds part of the amount. Payment status moves
// to partially_refunded; the booking status is left alone because a
// partially refunded booking is still completed business-wise.
func ApplyPartialRefund(tx *gorm.DB, booking *models.Booking, amount float64, reason, source, notes string) error {
	if booking.PaymentIntentId == nil {
		return types.NewValidationError("booking %d has no payment to refund", booking.ID)
	}
	if booking.QuoteAmount != nil && amount >= *booking.QuoteAmount {
		return types.NewValidationError("partial refund amount must be less than the quote amount")
	}
	sc := lib.GetStripeClient()
	ref, err := sc.V1Refunds.Create(context.Background(), &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(*booking.PaymentIntentId),
		Amount:        stripe.Int64(minorUnits(amount)),
	})
	if err != nil {
		log.Printf("[Payments] Error partially refunding booking %d: %s\n", booking.ID, err.Error())
		return types.NewDependencyError("stripe", err)
	}
	booking.PaymentStatus = types.PAYMENT_PARTIALLY_REFUNDED
	return tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]any{
		"payment_status": types.PAYMENT_PARTIALLY_REFUNDED,
		"refund_id":      ref.ID,
		"refunded_at":    time.Now(),
		"refund_reason":  reason,
		"refund_source":  source,
		"refund_notes":   notes,
	}).Error
}

// MarkPaymentAuthorized records a successful authorization callback.
// Guarded so redelivered events cannot clobber a later status.
func MarkPaymentAuthorized(tx *gorm.DB, bookingID uint) (bool, error) {
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND payment_status IN ?", bookingID, []types.PaymentStatus{types.PAYMENT_PENDING, types.PAYMENT_FAILED}).
		Updates(map[string]any{
			"payment_status": types.PAYMENT_AUTHORIZED,
			"authorized_at":  time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

// MarkPaymentFailed records a failed authorization attempt. Captured or
// refunded payments are left alone.
func MarkPaymentFailed(tx *gorm.DB, bookingID uint) (bool, error) {
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND payment_status IN ?", bookingID, []types.PaymentStatus{types.PAYMENT_PENDING, types.PAYMENT_AUTHORIZED}).
		Update("payment_status", types.PAYMENT_FAILED)
	return res.RowsAffected > 0, res.Error
}

// MarkPaymentDisputed records an open chargeback with its metadata.
func MarkPaymentDisputed(tx *gorm.DB, bookingID uint, reason string, amount float64, status string) error {
	return tx.Model(&models.Booking{}).Where("id = ?", bookingID).Updates(map[string]any{
		"payment_status": types.PAYMENT_DISPUTED,
		"dispute_reason": reason,
		"dispute_amount": amount,
		"dispute_status": status,
	}).Error
}

// ResolveDispute restores the payment to captured (won) without moving
// money, or marks it refunded (lost).
func ResolveDispute(tx *gorm.DB, bookingID uint, won bool, status string) error {
	updates := map[string]any{"dispute_status": status}
	if won {
		updates["payment_status"] = types.PAYMENT_CAPTURED
	} else {
		updates["payment_status"] = types.PAYMENT_REFUNDED
		updates["refunded_at"] = time.Now()
		updates["refund_source"] = "dispute"
	}
	return tx.Model(&models.Booking{}).Where("id = ?", bookingID).Updates(updates).Error
}
