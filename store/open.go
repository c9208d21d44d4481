package store

import (
	"context"
	"fmt"
	"strings"
)

// Backend kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindS3       = "s3"
	KindPostgres = "postgres"
)

// Config selects and configures a Backend.
type Config struct {
	Kind string
	Dir  string
	DSN  string
	S3   S3Config
}

// Open builds the backend cfg names. An empty kind means memory.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindFile:
		return NewFileStore(cfg.Dir)
	case KindS3:
		return NewS3Store(cfg.S3)
	case KindPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Kind)
	}
}
