package boot

import (
	"context"
	"log"
	"os"
	"time"

	"promarket/src/common"
	"promarket/src/db"
	"promarket/src/lib"
	awslib "promarket/src/lib/aws"
	"promarket/src/models"
	"promarket/src/utils"

	"github.com/tidwall/gjson"
)

func InitDb() error {
	conn := db.GetDb()
	err := conn.AutoMigrate(
		&models.User{},
		&models.Professional{},
		&models.Employee{},
		&models.BlockedRange{},
		&models.Project{},
		&models.Booking{},
		&models.StatusLog{},
		&models.WebhookEvent{},
	)
	if err != nil {
		log.Printf("[Boot] Error running migrations: %s\n", err.Error())
		return err
	}
	log.Println("[Boot] Migrations complete")
	return nil
}

// InitScheduler starts the periodic jobs: webhook dedup purge, the
// stale-quote sweep and the transfer replay.
func InitScheduler() error {
	s, err := lib.GetScheduler()
	if err != nil {
		return err
	}
	if _, err := lib.CreateCronJob(func() {
		if _, err := common.PurgeExpiredWebhookEvents(db.GetDb()); err != nil {
			log.Printf("[Boot] Webhook purge failed: %s\n", err.Error())
		}
	}, 6*time.Hour); err != nil {
		return err
	}
	if _, err := lib.CreateCronJob(func() {
		if _, err := common.ExpireStaleQuotes(db.GetDb()); err != nil {
			log.Printf("[Boot] Stale quote sweep failed: %s\n", err.Error())
		}
	}, 15*time.Minute); err != nil {
		return err
	}
	if _, err := lib.CreateCronJob(func() {
		if _, err := common.ReplayPendingTransfers(db.GetDb()); err != nil {
			log.Printf("[Boot] Transfer replay failed: %s\n", err.Error())
		}
	}, time.Hour); err != nil {
		return err
	}
	s.Start()
	log.Printf("[Boot] Scheduler started with %d jobs\n", len(s.Jobs()))
	return nil
}

// mailHandlerFunc delivers a queued email message: SES on deployed
// environments, SMTP locally.
func mailHandlerFunc(payload string) {
	to := []string{}
	for _, addr := range gjson.Get(payload, "to").Array() {
		to = append(to, addr.String())
	}
	if len(to) == 0 {
		return
	}
	if os.Getenv("API_ENV") != "local" {
		err := awslib.SendEmail(context.Background(), &awslib.SendEmailInput{
			To:      to,
			Subject: gjson.Get(payload, "subject").String(),
			Body:    gjson.Get(payload, "body").String(),
			HTML:    gjson.Get(payload, "html").Bool(),
		})
		if err != nil {
			log.Printf("[Mailer] Error sending email: %s\n", err.Error())
		}
		return
	}
	err := lib.SendMail(&lib.SendMailInput{
		From:     gjson.Get(payload, "from").String(),
		FromName: gjson.Get(payload, "from-name").String(),
		To:       to,
		ReplyTo:  gjson.Get(payload, "reply-to").String(),
		Subject:  gjson.Get(payload, "subject").String(),
		Body:     gjson.Get(payload, "body").String(),
		Html:     gjson.Get(payload, "html").Bool(),
	})
	if err != nil {
		log.Printf("[Mailer] Error sending email: %s\n", err.Error())
	}
}

// InitBroker wires the queue consumers. Local development runs on
// kafka; deployed environments consume from SQS.
func InitBroker(ctx context.Context, done <-chan bool) {
	emailQueue := utils.WithSuffix(os.Getenv("EMAIL_QUEUE"))
	notificationsQueue := utils.WithSuffix(os.Getenv("NOTIFICATIONS_QUEUE"))
	if os.Getenv("API_ENV") == "local" {
		if _, err := lib.KafkaCreateTopics(emailQueue, notificationsQueue); err != nil {
			log.Printf("[Boot] Error creating topics: %s\n", err.Error())
		}
		lib.KafkaConsumer("mailer", emailQueue, mailHandlerFunc)
		lib.KafkaConsumer("notifications", notificationsQueue, common.NotificationsHandlerFunc)
		return
	}
	go awslib.SQSConsumer(ctx, done, emailQueue, mailHandlerFunc)
	go awslib.SQSConsumer(ctx, done, notificationsQueue, common.NotificationsHandlerFunc)
}
