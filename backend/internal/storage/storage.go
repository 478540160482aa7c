package storage

import (
	"context"
	"net/http"
	"strings"
	"time"

	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Config describes the S3-compatible bucket holding user media
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	TTL       time.Duration
}

// PresignedURL is a time-limited URL for direct client uploads or downloads
type PresignedURL struct {
	URL       string      `json:"url"`
	Method    string      `json:"method"`
	Key       string      `json:"key"`
	Headers   http.Header `json:"headers,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Presigner issues presigned object URLs
type Presigner struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewPresigner builds an S3 presign client. A custom endpoint switches to
// path-style addressing for MinIO and similar servers.
func NewPresigner(cfg Config) *Presigner {
	awsCfg := aws.Config{Region: cfg.Region}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		awsCfg.Credentials = aws.AnonymousCredentials{}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
			o.UsePathStyle = true
		}
	})

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &Presigner{
		presign: s3.NewPresignClient(client, s3.WithPresignExpires(ttl)),
		bucket:  cfg.Bucket,
		ttl:     ttl,
		logger:  logger.Named("storage"),
	}
}

// PresignPut returns a URL the client can PUT the object body to
func (p *Presigner) PresignPut(ctx context.Context, key, contentType string) (*PresignedURL, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := p.presign.PresignPutObject(ctx, input)
	if err != nil {
		p.logger.Error("Failed to presign upload", zap.String("key", key), zap.Error(err))
		return nil, apperrors.NewStorageFailed("presign put", err)
	}
	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		Headers:   req.SignedHeader,
		ExpiresAt: time.Now().Add(p.ttl).UTC(),
	}, nil
}

// PresignGet returns a URL the client can download the object from
func (p *Presigner) PresignGet(ctx context.Context, key string) (*PresignedURL, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		p.logger.Error("Failed to presign download", zap.String("key", key), zap.Error(err))
		return nil, apperrors.NewStorageFailed("presign get", err)
	}
	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		ExpiresAt: time.Now().Add(p.ttl).UTC(),
	}, nil
}
