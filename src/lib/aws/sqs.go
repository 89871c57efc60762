package aws

import (
	"context"
	"log"
	"time"

	"promarket/src/lib"
	"promarket/src/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSConsumer long-polls a queue and hands each message body to handler,
// deleting the message afterwards. Runs until ctx is cancelled or a value
// is received on done.
func SQSConsumer(ctx context.Context, done <-chan bool, queue string, handler types.Handler) {
	client := lib.AWSGetSQSClient()
	if client == nil {
		return
	}
	qurl, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queue),
	})
	if err != nil {
		log.Printf("Error retrieving queue URL for %s: %s\n", queue, err.Error())
		return
	}
	log.Printf("Listening for messages on queue: %s\n", queue)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			log.Printf("Stopped listening on queue: %s\n", queue)
			return
		default:
		}
		out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            qurl.QueueUrl,
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     10,
		})
		if err != nil {
			log.Printf("Error receiving messages from %s: %s\n", queue, err.Error())
			time.Sleep(5 * time.Second)
			continue
		}
		for _, msg := range out.Messages {
			if msg.Body != nil {
				handler(*msg.Body)
			}
			lib.SQSDeleteMessage(client, qurl.QueueUrl, &msg)
		}
	}
}
