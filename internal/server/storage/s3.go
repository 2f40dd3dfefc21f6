// Package storage talks to S3-compatible object storage (MinIO in
// development). Clients upload and download image bytes directly through
// presigned URLs; the server only streams objects for the file endpoint.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/cellscope/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}

	timeNow = time.Now
)

// Config carries the connection settings. PublicEndpoint, when set, replaces
// Endpoint as the host of presigned URLs (the address clients can reach).
type Config struct {
	Endpoint       string
	PublicEndpoint string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	PresignExpiry  time.Duration
}

// Object is a downloaded object; the caller closes Body.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

type S3Storage struct {
	cfg     Config
	client  *s3.Client
	presign *s3.PresignClient
}

// New builds the S3 clients. Path-style addressing is forced so MinIO works
// without virtual-host DNS.
func New(ctx context.Context, cfg Config) (*S3Storage, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	withEndpoint := func(ep string) func(*s3.Options) {
		return func(o *s3.Options) {
			o.BaseEndpoint = aws.String(ep)
			o.UsePathStyle = true
		}
	}

	client := newS3ClientFromConfig(awsCfg, withEndpoint(cfg.Endpoint))

	presignClient := client
	if cfg.PublicEndpoint != "" {
		presignClient = newS3ClientFromConfig(awsCfg, withEndpoint(cfg.PublicEndpoint))
	}

	return &S3Storage{
		cfg:     cfg,
		client:  client,
		presign: newS3PresignClient(presignClient),
	}, nil
}

// PresignPut returns a URL the client can PUT the object to, bound to the
// given content type, and the instant it stops working.
func (s *S3Storage) PresignPut(ctx context.Context, key, contentType string) (string, time.Time, error) {
	expires := timeNow().Add(s.cfg.PresignExpiry)

	req, err := presignPutObject(s.presign, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign put: %w", err)
	}

	return req.URL, expires, nil
}

// PresignGet returns a time-limited download URL.
func (s *S3Storage) PresignGet(ctx context.Context, key string) (string, time.Time, error) {
	expires := timeNow().Add(s.cfg.PresignExpiry)

	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign get: %w", err)
	}

	return req.URL, expires, nil
}

// GetObject opens the object for streaming. A missing key is
// common.ErrorNotFound.
func (s *S3Storage) GetObject(ctx context.Context, key string) (*Object, error) {
	out, err := getObject(s.client, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}

	obj := &Object{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
	}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if obj.ContentType == "" {
		obj.ContentType = "application/octet-stream"
	}
	return obj, nil
}

// PutObject stores data under key with the given content type.
func (s *S3Storage) PutObject(ctx context.Context, key, contentType string, data []byte) error {
	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// DeleteObject removes key. Deleting a missing key is not an error.
func (s *S3Storage) DeleteObject(ctx context.Context, key string) error {
	_, err := deleteObject(s.client, ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
