package blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	extErrors "github.com/pkg/errors"
)

// S3Sink writes payloads to a single S3 bucket
type S3Sink struct {
	client *s3.Client
	bucket string
}

var _ Sink = &S3Sink{}

// NewS3Sink returns a Sink backed by the given bucket
func NewS3Sink(client *s3.Client, bucket string) (*S3Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("nil s3 client is invalid")
	}
	if len(bucket) == 0 {
		return nil, fmt.Errorf("empty bucket is invalid")
	}
	return &S3Sink{
		client: client,
		bucket: bucket,
	}, nil
}

func (s *S3Sink) Put(ctx context.Context, key string, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return extErrors.Wrap(err, "Cannot write payload blob")
	}
	return nil
}
