package aws

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sesTypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
)

var sesClient *ses.Client

func GetSESClient() *ses.Client {
	if sesClient != nil {
		return sesClient
	}
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Failed to initialize SES client: %s\n", err.Error())
		return nil
	}
	sesClient = ses.NewFromConfig(cfg)
	return sesClient
}

type SendEmailInput struct {
	To      []string
	Subject string
	Body    string
	HTML    bool
}

func SendEmail(ctx context.Context, in *SendEmailInput) error {
	client := GetSESClient()
	sender := os.Getenv("MAIL_SENDER")
	content := &sesTypes.Content{Data: aws.String(in.Body), Charset: aws.String("UTF-8")}
	body := &sesTypes.Body{}
	if in.HTML {
		body.Html = content
	} else {
		body.Text = content
	}
	out, err := client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(sender),
		Destination: &sesTypes.Destination{ToAddresses: in.To},
		Message: &sesTypes.Message{
			Subject: &sesTypes.Content{Data: aws.String(in.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	})
	if err != nil {
		log.Printf("[SES] Error sending email: %s\n", err.Error())
		return err
	}
	log.Printf("[SES] Sent email with id: %s\n", *out.MessageId)
	return nil
}
