package storage

import (
	"context"
	"time"
)

// Provider gives access to objects in a bucket-based store.
// S3 implements this.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// ListObjects lists objects under a location.
	ListObjects(ctx context.Context, loc Location, limit int) ([]ObjectInfo, error)

	// GetObject downloads a whole object.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// PresignGet returns a URL granting GET access to one object until the
	// returned expiry.
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, time.Time, error)

	// Close releases resources.
	Close() error
}
