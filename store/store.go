// Package store persists unit sources and descriptors behind a small
// key/blob Backend, with memory, file, S3 and Postgres implementations.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
)

// ErrNotFound is returned when a key has no object. It wraps fs.ErrNotExist
// so callers can test for it without importing this package.
var ErrNotFound = fmt.Errorf("store: object not found: %w", fs.ErrNotExist)

// Backend stores opaque blobs under slash-separated keys.
type Backend interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the keys under prefix with the prefix removed, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

func normalizeKey(key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("store: key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("store: invalid key %q", key)
		}
	}
	return key, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
