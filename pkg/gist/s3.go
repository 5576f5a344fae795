package gist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store stores canonical markdown in an S3 bucket, one object per
// gist id under a key prefix.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	store := gist.NewS3Store(s3.NewFromConfig(cfg), "my-bucket")
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	closed bool
}

// S3StoreOption configures S3Store behavior.
type S3StoreOption func(*s3StoreConfig)

type s3StoreConfig struct {
	prefix string
}

// WithS3Prefix sets the key prefix for gist objects.
// Default: "gists/".
func WithS3Prefix(prefix string) S3StoreOption {
	return func(c *s3StoreConfig) {
		c.prefix = prefix
	}
}

// NewS3Store creates a new S3-backed gist store.
func NewS3Store(client *s3.Client, bucket string, opts ...S3StoreOption) *S3Store {
	cfg := &s3StoreConfig{
		prefix: "gists/",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: cfg.prefix,
	}
}

// key returns the object key for a gist ID.
func (s *S3Store) key(gistID string) string {
	return s.prefix + gistID + ".md"
}

// Load retrieves canonical content if the object exists.
func (s *S3Store) Load(ctx context.Context, gistID string) (string, bool, error) {
	if s.closed {
		return "", false, ErrStoreClosed{}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(gistID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("gist: s3 load: %w", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, fmt.Errorf("gist: s3 read: %w", err)
	}
	return string(content), true, nil
}

// Save uploads canonical content, overwriting any prior object.
func (s *S3Store) Save(ctx context.Context, gistID, content string) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(gistID)),
		Body:        bytes.NewReader([]byte(content)),
		ContentType: aws.String("text/markdown; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("gist: s3 save: %w", err)
	}
	return nil
}

// Delete removes a gist object.
func (s *S3Store) Delete(ctx context.Context, gistID string) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(gistID)),
	})
	if err != nil {
		return fmt.Errorf("gist: s3 delete: %w", err)
	}
	return nil
}

// Close shuts down the store. The S3 client has no resources to
// release.
func (s *S3Store) Close() error {
	s.closed = true
	return nil
}
