package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

type GCSConfig struct {
	Bucket        string
	PublicBaseURL string
	PublicRead    bool
}

type GCSStore struct {
	cfg    GCSConfig
	client *gcs.Client
}

func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return &GCSStore{cfg: cfg, client: client}, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.cfg.Bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", s.cfg.Bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("gcs get %s: %w", key, err)
	}
	return r, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	w := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if s.cfg.PublicRead {
		w.PredefinedACL = "publicRead"
	}
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) URL(key string) string {
	base := s.cfg.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + s.cfg.Bucket
	}
	return joinURL(base, key)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
