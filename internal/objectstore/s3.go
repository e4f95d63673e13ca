package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/receiptsllc/sheriffsale/internal/services"
)

// Options configures an S3Store. Static credentials are used when both keys
// are set, otherwise the default AWS credential chain.
type Options struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Retry      services.RetryPolicy
	// PresignTTL > 0 makes URL hand out presigned GET URLs so an external
	// extractor can read a private bucket.
	PresignTTL time.Duration
}

// S3Store is a DocumentStore backed by an S3 bucket.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	region   string
	bucket   string
	retry    services.RetryPolicy
	ttl      time.Duration
}

var _ services.DocumentStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	slog.Info("S3 document store initialized.", "bucket", opts.Bucket, "region", opts.Region)
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		region:   opts.Region,
		bucket:   opts.Bucket,
		retry:    opts.Retry,
		ttl:      opts.PresignTTL,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, data []byte) error {
	return services.Retry(ctx, s.retry, ObjectURL(s.bucket, s.region, key), func(ctx context.Context) error {
		ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		_, err := s.uploader.Upload(ctxUpload, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/pdf"),
		})
		if err != nil {
			return fmt.Errorf("s3 upload failed: %w", err)
		}
		return nil
	})
}

func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (s *S3Store) URL(key string) string {
	if s.ttl > 0 {
		u, err := s.PresignedURL(context.Background(), key, s.ttl)
		if err == nil {
			return u
		}
		slog.Warn("Presigning failed, using object URL.", "key", key, "error", err)
	}
	return ObjectURL(s.bucket, s.region, key)
}

// PresignedURL returns a GET URL for key valid for ttl. Signing is local and
// makes no request.
func (s *S3Store) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(s.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign failed: %w", err)
	}
	return req.URL, nil
}

// ObjectURL is the virtual-hosted style URL of key, escaped per segment.
func ObjectURL(bucket, region, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, strings.Join(segments, "/"))
}
