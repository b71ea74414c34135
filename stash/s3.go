package stash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3API is the subset of the S3 client used by S3Disk.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Disk stores documents as objects under a bucket prefix.
type S3Disk struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Disk creates a disk over bucket. prefix may be empty.
func NewS3Disk(client S3API, bucket, prefix string) *S3Disk {
	return &S3Disk{client: client, bucket: bucket, prefix: prefix}
}

func (d *S3Disk) objectKey(key string) string {
	if d.prefix == "" {
		return key
	}
	return path.Join(d.prefix, key)
}

func (d *S3Disk) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey := d.objectKey(key)
	log.Debug().
		Str("bucket", d.bucket).
		Str("key", objectKey).
		Msg("S3 GET")

	result, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("S3 GetObject failed: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, nil
}

func (d *S3Disk) Put(ctx context.Context, key string, data []byte) error {
	objectKey := d.objectKey(key)
	log.Debug().
		Str("bucket", d.bucket).
		Str("key", objectKey).
		Int("size", len(data)).
		Msg("S3 PUT")

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject failed: %w", err)
	}
	return nil
}

// Delete removes the object. S3 does not report missing objects, so this
// never returns ErrNotFound.
func (d *S3Disk) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("S3 DeleteObject failed: %w", err)
	}
	return nil
}
