// Package s3 provides an S3 implementation of the storage provider.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	s3client "github.com/txn2/mcp-s3/pkg/client"

	"github.com/DHI/gwc-datalib/pkg/storage"
)

// maxListKeys is the S3 page size limit.
const maxListKeys = 1000

// Config holds S3 adapter configuration.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	Timeout         time.Duration
	ConnectionName  string
}

// ListClient lists objects. *s3client.Client implements it.
type ListClient interface {
	ListObjects(ctx context.Context, bucket, prefix, delimiter string, maxKeys int32, continueToken string) (*s3client.ListObjectsOutput, error)
	Close() error
}

// ObjectClient downloads objects. *awss3.Client implements it.
type ObjectClient interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// Presigner signs GET requests. *awss3.PresignClient implements it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Adapter implements storage.Provider using S3.
type Adapter struct {
	cfg       Config
	lister    ListClient
	objects   ObjectClient
	presigner Presigner
	clock     clockwork.Clock
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock sets the clock used to compute presigned URL expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Adapter) { a.clock = clock }
}

// New creates a new S3 adapter with existing clients.
func New(cfg Config, lister ListClient, objects ObjectClient, presigner Presigner, opts ...Option) (*Adapter, error) {
	if lister == nil {
		return nil, errors.New("s3 client is required")
	}
	a := &Adapter{
		cfg:       cfg,
		lister:    lister,
		objects:   objects,
		presigner: presigner,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewFromConfig creates an adapter with an mcp-s3 client for listing and an
// AWS SDK client for downloads and presigning.
func NewFromConfig(ctx context.Context, cfg Config) (*Adapter, error) {
	lister, err := s3client.New(ctx, &s3client.Config{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		UsePathStyle:    cfg.UsePathStyle,
		Timeout:         cfg.Timeout,
		Name:            cfg.ConnectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		_ = lister.Close()
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return New(cfg, lister, client, awss3.NewPresignClient(client))
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	if a.cfg.ConnectionName != "" {
		return a.cfg.ConnectionName
	}
	return "s3"
}

// ListObjects lists objects under a location, following continuation
// tokens until the listing ends. A positive limit caps the number of objects
// returned.
func (a *Adapter) ListObjects(ctx context.Context, loc storage.Location, limit int) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo
	token := ""
	for {
		pageSize := maxListKeys
		if limit > 0 {
			pageSize = min(limit-len(objects), maxListKeys)
		}
		result, err := a.lister.ListObjects(ctx, loc.Bucket, loc.Prefix, "", int32(pageSize), token) // #nosec G115 -- bounded by maxListKeys
		if err != nil {
			return nil, fmt.Errorf("listing objects in %s: %w", loc, err)
		}
		for _, obj := range result.Objects {
			modified := obj.LastModified
			objects = append(objects, storage.ObjectInfo{
				Key:          obj.Key,
				Bucket:       loc.Bucket,
				Size:         obj.Size,
				LastModified: &modified,
			})
		}
		if limit > 0 && len(objects) >= limit {
			return objects[:limit], nil
		}
		if !result.IsTruncated || result.NextContinueToken == "" {
			return objects, nil
		}
		token = result.NextContinueToken
	}
}

// GetObject downloads a whole object.
func (a *Adapter) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if a.objects == nil {
		return nil, errors.New("s3 object client is not configured")
	}
	out, err := a.objects.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// PresignGet returns a presigned GET URL valid for ttl.
func (a *Adapter) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, time.Time, error) {
	if a.presigner == nil {
		return "", time.Time{}, errors.New("s3 presigner is not configured")
	}
	issued := a.clock.Now()
	req, err := a.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presigning s3://%s/%s: %w", bucket, key, err)
	}
	return req.URL, issued.Add(ttl), nil
}

// Close releases resources.
func (a *Adapter) Close() error {
	if a.lister != nil {
		return a.lister.Close()
	}
	return nil
}

// Verify interface compliance.
var _ storage.Provider = (*Adapter)(nil)
