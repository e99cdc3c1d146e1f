package storage

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

type R2Options struct {
	Bucket       string
	AccessKeyID  string
	SecretKey    string
	Endpoint     string // https://<account-id>.r2.cloudflarestorage.com
	PublicDomain string // custom domain or r2.dev URL
}

// R2Store talks to Cloudflare R2 through its S3-compatible API.
type R2Store struct {
	s3     *s3.Client
	bucket string
	domain string
}

func NewR2Store(ctx context.Context, opts R2Options) (*R2Store, error) {
	if opts.Bucket == "" || opts.AccessKeyID == "" || opts.SecretKey == "" || opts.Endpoint == "" {
		return nil, fmt.Errorf("missing R2 settings (bucket, access key, secret key, endpoint)")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, ""),
		),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true // required for R2
	})

	return &R2Store{
		s3:     client,
		bucket: opts.Bucket,
		domain: strings.TrimRight(opts.PublicDomain, "/"),
	}, nil
}

func (r *R2Store) Put(ctx context.Context, objectName, contentType string, body io.Reader) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(r.bucket),
		Key:          aws.String(objectName),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	return r.publicURL(objectName), nil
}

func (r *R2Store) Delete(ctx context.Context, objectName string) error {
	_, err := r.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", objectName, err)
	}
	return nil
}

func (r *R2Store) ObjectName(raw string) (string, bool) {
	prefix := r.domain + "/" + r.bucket + "/"
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(raw, prefix)
	return name, name != ""
}

func (r *R2Store) publicURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", r.domain, r.bucket, objectName)
}
