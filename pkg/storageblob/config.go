package storageblob

import (
	"context"
	"fmt"
	"time"
)

// Backend type identifiers recognized by NewBackend.
const (
	TypeMemory   = "memory"
	TypeS3       = "s3"
	TypeDisabled = "disabled"
)

// Config selects and configures a blob backend.
type Config struct {
	Type string // "memory", "s3", "disabled"

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis read-through cache config; applied on top of whichever
	// backend Type selects when CacheEnabled is true.
	CacheEnabled  bool
	CacheTTL      time.Duration
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns the in-memory backend with caching off.
func DefaultConfig() Config {
	return Config{
		Type:     TypeMemory,
		CacheTTL: 5 * time.Minute,
		RedisDB:  0,
	}
}

// NewBackend constructs the Backend the config describes, or (nil, nil)
// when Type is "disabled", in which case storage routes pass through.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	var backend Backend
	switch cfg.Type {
	case TypeDisabled:
		return nil, nil
	case TypeMemory, "":
		backend = NewMemoryBackend()
	case TypeS3:
		b, err := NewS3Backend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("storageblob: unknown backend type %q", cfg.Type)
	}

	if cfg.CacheEnabled {
		cached, err := NewCachedBackend(ctx, backend, cfg)
		if err != nil {
			return nil, err
		}
		backend = cached
	}
	return backend, nil
}
