package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fpang/image-localizer/internal/s3util"
)

// BucketAPI is the subset of *s3.Client the S3 uploader uses.
type BucketAPI interface {
	s3util.ObjectPutter
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Uploader writes files under a key prefix in one bucket.
type S3Uploader struct {
	client BucketAPI
	bucket string
	prefix string
}

// NewS3Uploader targets bucket/prefix.
func NewS3Uploader(client BucketAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

// Destination implements Uploader.
func (u *S3Uploader) Destination() string {
	return "s3://" + s3util.ObjectKey(u.bucket, u.prefix)
}

// Verify checks the bucket exists and the caller may access it.
func (u *S3Uploader) Verify(ctx context.Context) error {
	if u.bucket == "" {
		return fmt.Errorf("%w: s3 bucket required", ErrDestinationUnavailable)
	}
	if _, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &u.bucket}); err != nil {
		return errors.Join(ErrDestinationUnavailable, fmt.Errorf("head bucket %s: %w", u.bucket, err))
	}
	return nil
}

// Upload implements Uploader and returns the object key.
func (u *S3Uploader) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	key := s3util.ObjectKey(u.prefix, name)
	if err := s3util.UploadBytes(ctx, u.client, u.bucket, key, mimeType, data); err != nil {
		return "", err
	}
	return key, nil
}

// Key returns the object key an Upload of name would use.
func (u *S3Uploader) Key(name string) string {
	return s3util.ObjectKey(u.prefix, name)
}
