package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const defaultGCSBase = "https://storage.googleapis.com"

// GCSBlobStore keeps photos in a Google Cloud Storage bucket.
type GCSBlobStore struct {
	client     *gcs.Client
	bucket     *gcs.BucketHandle
	bucketName string
	baseURL    string
}

// NewGCSBlobStore opens a client. credentialsFile may be empty to use
// application default credentials.
func NewGCSBlobStore(ctx context.Context, bucket, credentialsFile, baseURL string) (*GCSBlobStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs blob: bucket not set")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs blob: create client: %w", err)
	}
	if baseURL == "" {
		baseURL = defaultGCSBase + "/" + bucket
	}
	return &GCSBlobStore{
		client:     client,
		bucket:     client.Bucket(bucket),
		bucketName: bucket,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// Upload overwrites any existing object with the same key.
func (s *GCSBlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	key = cleanKey(key)
	if key == "" {
		return ErrEmptyKey
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs blob: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs blob: commit %s: %w", key, err)
	}
	return nil
}

func (s *GCSBlobStore) PublicURL(key string) string {
	return s.baseURL + "/" + cleanKey(key)
}

func (s *GCSBlobStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
