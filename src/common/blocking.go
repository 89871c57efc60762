package common

import (
	"fmt"
	"log"

	"promarket/src/models"

	"gorm.io/gorm"
)

const bookingBlockTagPrefix = "project-booking:"

// BookingBlockTag is the reason tag correlating blocked ranges with the
// booking that created them. Kept byte-compatible with stored data;
// always build and match tags through this function.
func BookingBlockTag(bookingID uint) string {
	return fmt.Sprintf("%s%d", bookingBlockTagPrefix, bookingID)
}

// IsBookingBlockTag reports whether a reason string is booking-derived
// as opposed to a manual block.
func IsBookingBlockTag(reason string) bool {
	return len(reason) > len(bookingBlockTagPrefix) && reason[:len(bookingBlockTagPrefix)] == bookingBlockTagPrefix
}

// HasBookingBlocks reports whether any blocked range is tagged for the
// booking. Used as the reserve guard so repeated webhook delivery does
// not double-block.
func HasBookingBlocks(tx *gorm.DB, bookingID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.BlockedRange{}).
		Where("reason = ?", BookingBlockTag(bookingID)).
		Count(&count).Error
	return count > 0, err
}

// ReserveBookingBlocks writes the booking's reservation into the
// ledger: one execution-range entry per resource, plus one buffer-range
// entry when the buffer extends past the execution end. Safe to call
// more than once for the same booking; an existing tag means the work
// is already done.
func ReserveBookingBlocks(tx *gorm.DB, bookingID uint, resourceIDs []uint, w ScheduleWindow) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	exists, err := HasBookingBlocks(tx, bookingID)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("[Blocking] Blocks already reserved for booking %d, skipping\n", bookingID)
		return nil
	}
	tag := BookingBlockTag(bookingID)
	entries := []models.BlockedRange{}
	for _, rid := range resourceIDs {
		entries = append(entries, models.BlockedRange{
			ResourceID: rid,
			Start:      w.Start,
			End:        w.ExecutionEnd,
			Reason:     tag,
		})
		if w.HasBuffer() {
			entries = append(entries, models.BlockedRange{
				ResourceID: rid,
				Start:      w.BufferStart,
				End:        w.BufferEnd,
				Reason:     tag,
			})
		}
	}
	if err := tx.Create(&entries).Error; err != nil {
		return err
	}
	log.Printf("[Blocking] Reserved %d blocked ranges for booking %d\n", len(entries), bookingID)
	return nil
}

// ReleaseBookingBlocks removes every blocked range tagged for the
// booking across all resources. A booking with no blocks is a no-op,
// so release is always safe to retry.
func ReleaseBookingBlocks(tx *gorm.DB, bookingID uint) error {
	res := tx.Unscoped().
		Where("reason = ?", BookingBlockTag(bookingID)).
		Delete(&models.BlockedRange{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[Blocking] Released %d blocked ranges for booking %d\n", res.RowsAffected, bookingID)
	}
	return nil
}

// ListBlockedRanges returns every range for a resource, manual and
// booking-derived alike, for conflict checking.
func ListBlockedRanges(tx *gorm.DB, resourceID uint) ([]models.BlockedRange, error) {
	var ranges []models.BlockedRange
	err := tx.
		Where("resource_id = ?", resourceID).
		Order("start asc").
		Find(&ranges).Error
	return ranges, err
}
