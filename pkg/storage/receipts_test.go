package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func testReceipt() Receipt {
	return Receipt{
		EnrollmentID: "enr-1",
		CourseID:     3,
		CourseTitle:  "Go Backend Mentorship",
		StudentName:  "Ada",
		Email:        "ada@example.com",
		Amount:       "199.00",
		Currency:     "USD",
		EnrolledAt:   time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "receipts/go-backend-mentorship/2026/10/enr-1.json", ObjectKey(testReceipt()))

	r := testReceipt()
	r.CourseTitle = ""
	assert.Equal(t, "receipts/course-3/2026/10/enr-1.json", ObjectKey(r))
}

func TestReceiptArchive_Store(t *testing.T) {
	putter := &fakePutter{}
	archive := NewReceiptArchive(putter, "receipts-bucket", "https://cdn.example.test/")

	url, err := archive.Store(context.Background(), testReceipt())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/receipts/go-backend-mentorship/2026/10/enr-1.json", url)

	assert.Equal(t, "receipts-bucket", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
	assert.Equal(t, "enr-1", putter.input.Metadata["enrollment-id"])

	var got Receipt
	require.NoError(t, json.Unmarshal(putter.body, &got))
	assert.Equal(t, testReceipt(), got)
}

func TestReceiptArchive_StoreWithoutPublicURL(t *testing.T) {
	archive := NewReceiptArchive(&fakePutter{}, "b", "")
	key, err := archive.Store(context.Background(), testReceipt())
	require.NoError(t, err)
	assert.Equal(t, ObjectKey(testReceipt()), key)
}

func TestReceiptArchive_StoreError(t *testing.T) {
	archive := NewReceiptArchive(&fakePutter{err: errors.New("boom")}, "b", "")
	_, err := archive.Store(context.Background(), testReceipt())
	assert.ErrorContains(t, err, "boom")
}
