package common

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestReserveWebhookEventFirstDeliveryWins(t *testing.T) {
	gormDB, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "webhook_events"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := ReserveWebhookEvent(gormDB, "evt_1", "payment_intent.succeeded")
	assert.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveWebhookEventDuplicateIsSkipped(t *testing.T) {
	gormDB, mock := newMockDB(t)

	// ON CONFLICT DO NOTHING: the insert affects no rows, and the
	// reclaim update matches nothing because the record is not failed.
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "webhook_events"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "webhook_events"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	claimed, err := ReserveWebhookEvent(gormDB, "evt_1", "payment_intent.succeeded")
	assert.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveWebhookEventReclaimsFailedEvent(t *testing.T) {
	gormDB, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "webhook_events"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "webhook_events"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := ReserveWebhookEvent(gormDB, "evt_failed", "charge.refunded")
	assert.NoError(t, err)
	assert.True(t, claimed, "a failed event is re-claimable on redelivery")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpiredWebhookEvents(t *testing.T) {
	gormDB, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "webhook_events"`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	purged, err := PurgeExpiredWebhookEvents(gormDB)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
