// Package objectstore talks to the S3-compatible bucket that holds mod files and images.
// Clients upload and download directly through presigned URLs; the server only signs,
// inspects and deletes objects.
package objectstore

import (
	"context"
	"time"

	"emperror.dev/errors"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.Sentinel("object not found")

// SniffBytes is how much of an object is fetched for content detection.
const SniffBytes = 3072

// PresignedRequest is everything a browser needs to talk to the bucket directly.
type PresignedRequest struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ObjectInfo is the subset of object metadata the server cares about.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// PutOptions constrains what the presigned PUT accepts.
type PutOptions struct {
	ContentType string
	Size        int64
	TTL         time.Duration
}

// GetOptions shapes the presigned download.
type GetOptions struct {
	FileName string
	TTL      time.Duration
}

// Store is the object storage backend.
type Store interface {
	PresignPut(ctx context.Context, key string, opts PutOptions) (*PresignedRequest, error)
	PresignGet(ctx context.Context, key string, opts GetOptions) (*PresignedRequest, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// Sniff detects the MIME type from the first SniffBytes of the object.
	Sniff(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}
