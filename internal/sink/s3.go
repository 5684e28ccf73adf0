package sink

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Sink uploads files to a bucket below a key prefix.
type S3Sink struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

func NewS3Sink(ctx context.Context, bucket, prefix, profile string) (*S3Sink, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	return newS3SinkWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3SinkWithClient(client manager.UploadAPIClient, bucket, prefix string) *S3Sink {
	return &S3Sink{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		uploader: manager.NewUploader(client),
	}
}

func (s *S3Sink) Location() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}

func (s *S3Sink) Write(ctx context.Context, name string, data []byte) error {
	rel, err := cleanName(name)
	if err != nil {
		return err
	}
	key := rel
	if s.prefix != "" {
		key = path.Join(s.prefix, rel)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("error uploading s3://%s/%s: %w", s.bucket, key, err)
	}
	log.Debug().Str("op", "sink/s3").Msgf("Uploaded %d bytes to s3://%s/%s", len(data), s.bucket, key)
	return nil
}

func parseS3URL(url string) (string, string, error) {
	url = strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(url, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	bucket := parts[0]
	prefix := ""
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}
