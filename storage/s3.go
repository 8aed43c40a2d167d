package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the contract document bucket
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: MinIO, R2, DO Spaces
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a bucket was configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// S3DocumentStore keeps rendered contract documents in S3-compatible storage.
type S3DocumentStore struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3DocumentStore(ctx context.Context, cfg S3Config) (*S3DocumentStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3DocumentStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: "contracts/",
	}, nil
}

// Put uploads a document and returns its reference, s3://bucket/key.
func (s *S3DocumentStore) Put(ctx context.Context, name string, data io.Reader, contentType string) (string, error) {
	key := s.prefix + strings.TrimPrefix(name, "/")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Open streams a previously stored document. The caller closes it.
func (s *S3DocumentStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, ok := strings.CutPrefix(ref, "s3://"+s.bucket+"/")
	if !ok {
		return nil, fmt.Errorf("document ref %q is not in bucket %s", ref, s.bucket)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}
