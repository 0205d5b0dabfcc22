package media

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Storage implements Store on an S3 bucket. The logical bucket passed to
// Save and Delete becomes a key prefix inside the configured S3 bucket.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
	endpoint string
	log      *zap.SugaredLogger
}

// NewS3Storage loads the default AWS credential chain. A non-empty endpoint
// targets an S3-compatible service (MinIO) with path-style addressing.
func NewS3Storage(ctx context.Context, region, bucket, endpoint string, log *zap.SugaredLogger) (*S3Storage, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	log.Infof("media.store: Initialized S3Storage for bucket %s (region %s)", bucket, region)
	return &S3Storage{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		region:   region,
		endpoint: endpoint,
		log:      log,
	}, nil
}

func (s *S3Storage) key(bucket, name string) string {
	if bucket == "" {
		return name
	}
	return bucket + "/" + name
}

func (s *S3Storage) Save(ctx context.Context, bucket, name, contentType string, data io.Reader) (string, error) {
	key := s.key(bucket, name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object '%s': %w", key, err)
	}
	s.log.Infof("media.store: Uploaded object s3://%s/%s", s.bucket, key)
	return key, nil
}

func (s *S3Storage) Delete(ctx context.Context, bucket, name string) error {
	key := s.key(bucket, name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object '%s': %w", key, err)
	}
	s.log.Infof("media.store: Deleted object s3://%s/%s", s.bucket, key)
	return nil
}

// PublicBaseURL is the virtual-hosted URL prefix of the bucket, or the
// path-style prefix when a custom endpoint is configured.
func (s *S3Storage) PublicBaseURL() string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s", s.endpoint, s.bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.bucket, s.region)
}
