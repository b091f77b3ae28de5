// Package storage archives enrollment receipts in Cloudflare R2 through the
// S3 API.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"

	"livementor_backend/pkg/config"
)

// ObjectPutter is the part of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ReceiptArchive struct {
	client    ObjectPutter
	bucket    string
	publicURL string
}

// NewR2Client builds an S3 client pointed at the account's R2 endpoint.
func NewR2Client(ctx context.Context, cfg config.StorageConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
		o.Region = "auto"
	})
	return client, nil
}

func NewReceiptArchive(client ObjectPutter, bucket, publicURL string) *ReceiptArchive {
	return &ReceiptArchive{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Receipt is the archived proof of a one-time course purchase.
type Receipt struct {
	EnrollmentID      string    `json:"enrollmentId"`
	CourseID          uint      `json:"courseId"`
	CourseTitle       string    `json:"courseTitle"`
	StudentName       string    `json:"studentName"`
	Email             string    `json:"email"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	CheckoutSessionID string    `json:"checkoutSessionId"`
	PaymentIntentID   string    `json:"paymentIntentId"`
	EnrolledAt        time.Time `json:"enrolledAt"`
}

// ObjectKey places receipts under the course slug and enrollment month.
func ObjectKey(r Receipt) string {
	course := slug.Make(r.CourseTitle)
	if course == "" {
		course = fmt.Sprintf("course-%d", r.CourseID)
	}
	return path.Join("receipts", course, r.EnrolledAt.UTC().Format("2006/01"), r.EnrollmentID+".json")
}

// Store uploads the receipt and returns its public URL, or the object key
// when no public URL is configured.
func (a *ReceiptArchive) Store(ctx context.Context, r Receipt) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}

	key := ObjectKey(r)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"enrollment-id": r.EnrollmentID,
			"course-id":     fmt.Sprint(r.CourseID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("could not upload receipt to R2: %w", err)
	}

	if a.publicURL == "" {
		return key, nil
	}
	return a.publicURL + "/" + key, nil
}
