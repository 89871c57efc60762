package common

import (
	"testing"
	"time"

	"promarket/src/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func staleQuoteRow(validUntil time.Time, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "customer_id", "booking_type", "status", "quote_valid_until"}).
		AddRow(7, 3, "professional", status, validUntil)
}

func TestExpireQuoteMessageCancelsStaleQuote(t *testing.T) {
	gormDB, mock := newMockDB(t)
	db.NewDB(gormDB)

	past := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(staleQuoteRow(past, "quoted"))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "bookings" .* FOR UPDATE`).
		WillReturnRows(staleQuoteRow(past, "quoted"))
	mock.ExpectExec(`UPDATE "bookings"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "status_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("0b210d51-7f15-4f0d-8f1c-0c1f6d7c9a01"))
	mock.ExpectCommit()

	NotificationsHandlerFunc(`{"booking_id":7,"action":"expire-quote"}`)
	assert.NoError(t, mock.ExpectationsWereMet(), "the scheduled expiry must cancel the stale quoted booking")
}

func TestExpireQuoteMessageIgnoresAnsweredQuote(t *testing.T) {
	gormDB, mock := newMockDB(t)
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(staleQuoteRow(time.Now().Add(-time.Hour), "quote_accepted"))

	NotificationsHandlerFunc(`{"booking_id":7,"action":"expire-quote"}`)
	assert.NoError(t, mock.ExpectationsWereMet(), "an accepted quote must not be cancelled by the expiry message")
}

func TestExpireQuoteMessageRespectsExtendedDeadline(t *testing.T) {
	gormDB, mock := newMockDB(t)
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(staleQuoteRow(time.Now().Add(time.Hour), "quoted"))

	NotificationsHandlerFunc(`{"booking_id":7,"action":"expire-quote"}`)
	assert.NoError(t, mock.ExpectationsWereMet(), "a quote still inside its validity window stays quoted")
}

func TestExpireQuoteMessageIgnoresZeroBookingID(t *testing.T) {
	gormDB, mock := newMockDB(t)
	db.NewDB(gormDB)

	NotificationsHandlerFunc(`{"action":"expire-quote"}`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
