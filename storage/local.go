package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalBlobStore writes blobs under a directory the HTTP server exposes
// statically (the router mounts /uploads).
type LocalBlobStore struct {
	dir     string
	baseURL string
}

func NewLocalBlobStore(dir, baseURL string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir blob dir: %w", err)
	}
	return &LocalBlobStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalBlobStore) Upload(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = cleanKey(key)
	if key == "" {
		return ErrEmptyKey
	}
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// write then rename so an overwrite never leaves a half-written photo
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *LocalBlobStore) PublicURL(key string) string {
	return s.baseURL + "/" + cleanKey(key)
}

func cleanKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	key = path.Clean("/" + filepath.ToSlash(key))
	return strings.TrimPrefix(key, "/")
}
