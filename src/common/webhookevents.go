package common

import (
	"log"
	"time"

	"promarket/src/models"
	"promarket/src/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEventRetention bounds how long dedup records are kept. Status
// is only consulted while the record exists, so expiry is hygiene, not
// correctness.
const WebhookEventRetention = 30 * 24 * time.Hour

// ReserveWebhookEvent atomically claims an external event for
// processing. The first delivery wins the insert; a redelivery of a
// failed event re-claims it with an incremented attempt count; anything
// else (processing or processed) is a duplicate to skip.
func ReserveWebhookEvent(tx *gorm.DB, eventID string, eventType string) (bool, error) {
	record := models.WebhookEvent{
		EventID:   eventID,
		Type:      eventType,
		Status:    types.WEBHOOK_EVENT_PROCESSING,
		Attempts:  1,
		ExpiresAt: time.Now().Add(WebhookEventRetention),
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&record)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	// The record exists. Only a failed event is re-claimable; the
	// conditional update keeps the claim atomic under concurrent
	// redelivery.
	claim := tx.Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, types.WEBHOOK_EVENT_FAILED).
		Updates(map[string]any{
			"status":     types.WEBHOOK_EVENT_PROCESSING,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": nil,
		})
	if claim.Error != nil {
		return false, claim.Error
	}
	if claim.RowsAffected > 0 {
		log.Printf("[WebhookEvents] Re-claimed failed event %s for retry\n", eventID)
		return true, nil
	}
	log.Printf("[WebhookEvents] Skipping duplicate event %s\n", eventID)
	return false, nil
}

// MarkWebhookEventProcessed finalizes a successfully handled event.
func MarkWebhookEventProcessed(tx *gorm.DB, eventID string) error {
	return tx.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":       types.WEBHOOK_EVENT_PROCESSED,
			"processed_at": time.Now(),
		}).Error
}

// MarkWebhookEventFailed records a handler failure, leaving the event
// re-claimable by a later redelivery.
func MarkWebhookEventFailed(tx *gorm.DB, eventID string, handlerErr error) error {
	msg := handlerErr.Error()
	return tx.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":     types.WEBHOOK_EVENT_FAILED,
			"last_error": msg,
		}).Error
}

// PurgeExpiredWebhookEvents deletes dedup records past their retention
// window. Wired to a periodic job at boot.
func PurgeExpiredWebhookEvents(db *gorm.DB) (int64, error) {
	res := db.Where("expires_at < ?", time.Now()).Delete(&models.WebhookEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[WebhookEvents] Purged %d expired event records\n", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
