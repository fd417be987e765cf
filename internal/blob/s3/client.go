// Package s3blob stores alert media and dispatch-report archives in an
// S3-compatible bucket (AWS, MinIO, R2, iDrive e2) using AWS SDK v2.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the configuration for an S3-compatible object store.
// Every provider is reached through the same fields; only Endpoint and
// ForcePathStyle usually differ.
type ClientConfig struct {
	// Endpoint is the provider URL, e.g. "https://minio.internal:9000".
	// Leave empty for AWS S3.
	Endpoint string

	// Region is the AWS region, or whatever region name the provider expects.
	Region string

	// Bucket holds both the alert media library and the dispatch report
	// archive, each under its own configured prefix.
	Bucket string

	// AccessKey is the access key ID.
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL picks https over http when Endpoint has no scheme. It is
	// ignored otherwise.
	UseSSL bool

	// ForcePathStyle puts the bucket in the path instead of the host name.
	// MinIO and most self-hosted providers need it.
	ForcePathStyle bool
}

// Client wraps the AWS S3 SDK client and the bucket it operates on. Store
// builds on it for reads and writes.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a Client from cfg. It uses static credentials and applies the
// endpoint override and path-style addressing when configured. No request is
// made; call Health to verify the bucket.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	// Static keys only; the ambient AWS credential chain is not consulted.
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Health issues HeadBucket to verify connectivity and permissions. It
// returns nil when the bucket is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// normaliseEndpoint returns endpoint unchanged when it already carries a
// scheme. Otherwise it prepends https:// or http:// depending on useSSL.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
