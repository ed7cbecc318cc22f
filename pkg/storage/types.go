// Package storage provides abstractions for object storage providers.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Location identifies a prefix in a bucket.
type Location struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

// String returns a string representation.
func (l Location) String() string {
	if l.Prefix != "" {
		return l.Bucket + "/" + l.Prefix
	}
	return l.Bucket
}

// ParseLocation accepts "s3://bucket/prefix" or "bucket/prefix".
func ParseLocation(uri string) (Location, error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid object location: %q", uri)
	}
	return Location{Bucket: bucket, Prefix: prefix}, nil
}

// ObjectInfo provides information about a storage object.
type ObjectInfo struct {
	Key          string     `json:"key"`
	Bucket       string     `json:"bucket"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Name returns the key relative to prefix.
func (o ObjectInfo) Name(prefix string) string {
	if prefix == "" {
		return o.Key
	}
	return strings.TrimPrefix(strings.TrimPrefix(o.Key, prefix), "/")
}
