package common

import (
	"testing"

	"promarket/src/models"
	"promarket/src/types"

	"github.com/stretchr/testify/assert"
)

func TestCaptureAndTransferPaymentGate(t *testing.T) {
	intent := "pi_123"
	cases := []struct {
		name   string
		status types.PaymentStatus
	}{
		{"pending payment is not capturable", types.PAYMENT_PENDING},
		{"failed payment is not capturable", types.PAYMENT_FAILED},
		{"refunded payment is not capturable", types.PAYMENT_REFUNDED},
		{"disputed payment is not capturable", types.PAYMENT_DISPUTED},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			booking := &models.Booking{ID: 11, PaymentStatus: c.status, PaymentIntentId: &intent}
			err := CaptureAndTransfer(gormDB, booking)
			assert.True(t, types.IsConflictError(err))
			assert.ErrorContains(t, err, "payment not capturable")
			assert.Equal(t, c.status, booking.PaymentStatus, "a rejected capture must not mutate payment status")
			assert.NoError(t, mock.ExpectationsWereMet(), "the gate must reject before any capture call or write")
		})
	}
}

func TestCaptureAndTransferCapturedPassthrough(t *testing.T) {
	gormDB, mock := newMockDB(t)
	intent := "pi_123"
	booking := &models.Booking{ID: 11, PaymentStatus: types.PAYMENT_CAPTURED, PaymentIntentId: &intent}
	err := CaptureAndTransfer(gormDB, booking)
	assert.NoError(t, err, "an already captured payment completes as a no-op")
	assert.NoError(t, mock.ExpectationsWereMet(), "no second capture call may be issued")
}

func TestCaptureAndTransferRequiresIntent(t *testing.T) {
	gormDB, mock := newMockDB(t)
	booking := &models.Booking{ID: 11, PaymentStatus: types.PAYMENT_AUTHORIZED}
	err := CaptureAndTransfer(gormDB, booking)
	assert.True(t, types.IsValidationError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuthorizationGuards(t *testing.T) {
	amount := 150.0
	currency := "USD"
	secret := "pi_123_secret_456"

	t.Run("status must be eligible", func(t *testing.T) {
		gormDB, mock := newMockDB(t)
		booking := &models.Booking{ID: 7, Status: types.BOOKING_RFQ, QuoteAmount: &amount, QuoteCurrency: &currency}
		_, err := CreateAuthorization(gormDB, booking)
		assert.True(t, types.IsConflictError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("quote is required", func(t *testing.T) {
		gormDB, mock := newMockDB(t)
		booking := &models.Booking{ID: 7, Status: types.BOOKING_QUOTE_ACCEPTED}
		_, err := CreateAuthorization(gormDB, booking)
		assert.True(t, types.IsValidationError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("live intent is reused", func(t *testing.T) {
		gormDB, mock := newMockDB(t)
		booking := &models.Booking{
			ID:                  7,
			Status:              types.BOOKING_PAYMENT_PENDING,
			QuoteAmount:         &amount,
			QuoteCurrency:       &currency,
			PaymentStatus:       types.PAYMENT_PENDING,
			PaymentClientSecret: &secret,
		}
		got, err := CreateAuthorization(gormDB, booking)
		assert.NoError(t, err)
		assert.Equal(t, secret, got)
		assert.NoError(t, mock.ExpectationsWereMet(), "no new intent may be created while one is live")
	})
}
