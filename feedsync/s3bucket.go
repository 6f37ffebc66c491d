// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config carries the connection settings for an S3-compatible object
// store (AWS S3, MinIO, and friends).
type S3Config struct {
	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:9000"
	// for MinIO. Leave empty for real AWS.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3BucketClient implements BucketClient on top of an S3-compatible store.
// Objects are addressed path-style so the same code works against MinIO.
type S3BucketClient struct {
	client   *s3.Client
	endpoint string
}

// NewS3BucketClient builds an S3 client with static credentials.
func NewS3BucketClient(ctx context.Context, cfg S3Config) (*S3BucketClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3BucketClient{
		client:   client,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

// Put writes one object, overwriting any previous version under the key.
func (c *S3BucketClient) Put(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to store object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PublicURL returns the path-style URL under which the object is served.
func (c *S3BucketClient) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", c.endpoint, bucket, key)
}
