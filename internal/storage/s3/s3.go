// Package s3 keeps review report artifacts in an S3 compatible bucket.
package s3

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/service/review"
)

const defaultPresignTTL = 15 * time.Minute

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PresignTTL      time.Duration
}

// Store presigns report uploads and confirms they landed.
type Store struct {
	log    *zap.Logger
	client s3iface.S3API
	bucket string
	ttl    time.Duration
}

// New builds a Store. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func New(cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewWithClient(s3.New(sess), cfg.Bucket, cfg.PresignTTL, log), nil
}

func NewWithClient(client s3iface.S3API, bucket string, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &Store{
		log:    log.With(zap.String("module", "s3")),
		client: client,
		bucket: bucket,
		ttl:    ttl,
	}
}

// ReportKey returns a fresh object key for a report on requestID.
func ReportKey(requestID string) string {
	return review.ReportPrefix(requestID) + uuid.NewString()
}

// PresignUpload returns a time limited PUT URL for key.
func (s *Store) PresignUpload(key string) (string, time.Time, error) {
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	expires := time.Now().Add(s.ttl)
	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign upload: %w", err)
	}
	return url, expires, nil
}

// Exists reports whether key has been uploaded. It satisfies the review
// service's artifact verifier.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return false, nil
	}
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	s.log.Warn("HeadObject failed", zap.String("key", key), zap.Error(err))
	return false, err
}
