package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Store reads and writes s3://bucket/key objects.
type s3Store struct {
	client *s3.Client
}

func newS3(ctx context.Context) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &s3Store{client: s3.NewFromConfig(cfg)}, nil
}

// Load implements Store.
func (s *s3Store) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := splitBucketPath(path, SchemeS3)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: s3 get %s: %w", path, err)
	}
	return out.Body, nil
}

// Save implements Store.
func (s *s3Store) Save(ctx context.Context, content []byte, path string) error {
	bucket, key, err := splitBucketPath(path, SchemeS3)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("objstore: s3 put %s: %w", path, err)
	}
	return nil
}
