package aws

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var s3Client *s3.Client

func GetS3Client() *s3.Client {
	if s3Client != nil {
		return s3Client
	}
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Failed to initialize S3 client: %s\n", err.Error())
		return nil
	}
	s3Client = s3.NewFromConfig(cfg)
	return s3Client
}

// NewS3Client Replace the S3 instance with a custom client implementation
func NewS3Client(c *s3.Client) {
	s3Client = c
}

// UploadObject streams body to the app bucket under key and returns the
// stored key. ContentType is passed through so browsers can render
// attachments inline.
func UploadObject(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	client := GetS3Client()
	bucket := os.Getenv("AWS_S3_BUCKET")
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		log.Printf("[S3] Error uploading object %s: %s\n", key, err.Error())
		return "", err
	}
	return key, nil
}

// PresignGetObject returns a time-limited download URL for a stored key.
func PresignGetObject(ctx context.Context, key string, expires time.Duration) (string, error) {
	client := GetS3Client()
	bucket := os.Getenv("AWS_S3_BUCKET")
	presigner := s3.NewPresignClient(client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		log.Printf("[S3] Error presigning object %s: %s\n", key, err.Error())
		return "", err
	}
	return req.URL, nil
}

func DeleteObject(ctx context.Context, key string) error {
	client := GetS3Client()
	bucket := os.Getenv("AWS_S3_BUCKET")
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Printf("[S3] Error deleting object %s: %s\n", key, err.Error())
	}
	return err
}
