package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"promarket/src/db"
	"promarket/src/lib"
	"promarket/src/lib/mailer"
	"promarket/src/models"
	"promarket/src/types"
	"promarket/src/utils"

	"firebase.google.com/go/v4/messaging"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

func fcmTokenCacheKey(userID uint) string {
	return fmt.Sprintf("user:%d:fcm_token", userID)
}

// NotifyBookingStatus fans a status-change notification out to the
// notifications queue. Best effort: failures are logged, never
// propagated, so a dead broker cannot fail a booking transition.
func NotifyBookingStatus(db *gorm.DB, booking *models.Booking, from, to types.BookingStatus) {
	var customer models.User
	if err := db.First(&customer, booking.CustomerID).Error; err != nil {
		log.Printf("[Notifications] Could not load customer for booking %d: %s\n", booking.ID, err.Error())
		return
	}
	payload := types.JSONB{
		"booking_id":  booking.ID,
		"from_status": string(from),
		"to_status":   string(to),
		"user_id":     customer.ID,
		"email":       customer.Email,
	}
	if customer.Phone != nil {
		payload["phone"] = *customer.Phone
	}
	queue := os.Getenv("NOTIFICATIONS_QUEUE")
	if os.Getenv("API_ENV") == "local" {
		if err := lib.KafkaProduceMessage("notifications", utils.WithSuffix(queue), &payload); err != nil {
			log.Printf("[Notifications] Could not enqueue message: %s\n", err.Error())
		}
		return
	}
	body, err := payload.Value()
	if err != nil {
		log.Printf("[Notifications] Could not encode message: %s\n", err.Error())
		return
	}
	if err := lib.SQSProduceMessage(utils.WithSuffix(queue), body.(string)); err != nil {
		log.Printf("[Notifications] Could not enqueue message: %s\n", err.Error())
	}
}

// NotificationsHandlerFunc consumes the notifications queue. Scheduled
// action messages are dispatched first; everything else is a
// status-change delivery over email, SMS and push, every channel best
// effort.
func NotificationsHandlerFunc(payload string) {
	if gjson.Get(payload, "action").String() == "expire-quote" {
		expireScheduledQuote(uint(gjson.Get(payload, "booking_id").Uint()))
		return
	}
	bookingID := gjson.Get(payload, "booking_id").Uint()
	toStatus := gjson.Get(payload, "to_status").String()
	email := gjson.Get(payload, "email").String()
	phone := gjson.Get(payload, "phone").String()
	userID := uint(gjson.Get(payload, "user_id").Uint())

	subject := fmt.Sprintf("Booking #%d update", bookingID)
	body := fmt.Sprintf("Your booking #%d is now %s.", bookingID, toStatus)

	if email != "" {
		sender := os.Getenv("MAIL_SENDER")
		err := mailer.NewMailerMessage(&lib.SendMailInput{
			From:    sender,
			To:      []string{email},
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			log.Printf("[Notifications] Email to %s failed: %s\n", utils.MaskEmail(email), err.Error())
		}
	}
	if phone != "" {
		lib.SNSSendSMS(phone, body)
	}
	if userID > 0 {
		sendPush(userID, subject, body)
	}
}

// expireScheduledQuote handles the one-shot expiry message scheduled at
// quote submission. Status and deadline are re-checked because the
// quote may have been accepted or rejected since the job was armed.
func expireScheduledQuote(bookingID uint) {
	if bookingID == 0 {
		return
	}
	conn := db.GetDb()
	var booking models.Booking
	if err := conn.First(&booking, bookingID).Error; err != nil {
		log.Printf("[Notifications] Could not load booking %d for quote expiry: %s\n", bookingID, err.Error())
		return
	}
	if booking.Status != types.BOOKING_QUOTED {
		return
	}
	if booking.QuoteValidUntil != nil && booking.QuoteValidUntil.After(time.Now()) {
		return
	}
	note := "quote validity deadline passed"
	if _, err := TransitionBooking(conn, bookingID, types.BOOKING_CANCELED, SystemActor, &TransitionOptions{
		Note:   &note,
		Reason: &note,
	}); err != nil {
		log.Printf("[Notifications] Could not expire quote for booking %d: %s\n", bookingID, err.Error())
	}
}

// sendPush delivers an FCM message when the user has a registered
// device token cached in redis.
func sendPush(userID uint, title, body string) {
	rdb := lib.GetRedisClient()
	if rdb == nil {
		return
	}
	token, err := rdb.Get(context.Background(), fcmTokenCacheKey(userID)).Result()
	if err != nil || token == "" {
		return
	}
	fcm, err := lib.GetFirebaseMessaging()
	if err != nil {
		log.Printf("[Notifications] FCM unavailable: %s\n", err.Error())
		return
	}
	_, err = fcm.Send(context.Background(), &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	})
	if err != nil {
		log.Printf("[Notifications] Push to user %d failed: %s\n", userID, err.Error())
	}
}

// RegisterFCMToken caches a device token for push delivery.
func RegisterFCMToken(userID uint, token string) error {
	rdb := lib.GetRedisClient()
	if rdb == nil {
		return nil
	}
	return rdb.Set(context.Background(), fcmTokenCacheKey(userID), token, 0).Err()
}
