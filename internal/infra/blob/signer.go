package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options locate the bucket holding question assets and reward images.
type Options struct {
	// Endpoint is an S3-compatible endpoint such as https://<account>.r2.cloudflarestorage.com.
	// Empty means AWS S3.
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Expiry is how long a signed URL stays valid.
	Expiry time.Duration
}

// Signer turns object paths into time-limited GET URLs.
type Signer struct {
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

func NewSigner(ctx context.Context, opts Options) (*Signer, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("blob bucket not configured")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load blob config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Signer{presign: s3.NewPresignClient(client), bucket: opts.Bucket, expiry: expiry}, nil
}

// SignedURL presigns a GET of objectPath. Leading slashes are ignored.
func (s *Signer) SignedURL(ctx context.Context, objectPath string) (string, error) {
	key := strings.TrimLeft(objectPath, "/")
	if key == "" {
		return "", fmt.Errorf("empty object path")
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
