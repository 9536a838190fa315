// Package storage is the blob store adapter for visitor photos.
package storage

import (
	"context"
	"errors"
)

var ErrEmptyKey = errors.New("blob key is empty")

// BlobStore uploads with overwrite-if-exists semantics and hands out public
// references.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}
