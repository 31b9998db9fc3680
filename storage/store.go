// Package storage puts and gets raster objects in S3, GCS or a local directory.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

const ContentTypeGeoTIFF = "image/tiff"

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStore is the subset of an object store the service needs.
type ObjectStore interface {
	// Get opens the object for reading. Missing objects yield ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// URL is the public address of key.
	URL(key string) string
}

// joinURL appends key to base, escaping each path segment.
func joinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
