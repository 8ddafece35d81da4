//go:build integration

package storageblob

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against real external services and are gated behind
// the integration build tag. Point them at a MinIO and a Redis with:
//
//	BASESTUB_S3_ENDPOINT=http://localhost:9000 \
//	BASESTUB_S3_ACCESS_KEY=minioadmin BASESTUB_S3_SECRET_KEY=minioadmin \
//	BASESTUB_REDIS_URL=redis://localhost:6379/0 \
//	go test -tags integration ./pkg/storageblob/

func s3ConfigFromEnv(t *testing.T) Config {
	t.Helper()
	endpoint := os.Getenv("BASESTUB_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("BASESTUB_S3_ENDPOINT not set")
	}
	return Config{
		Type:           TypeS3,
		S3Endpoint:     endpoint,
		S3AccessKey:    os.Getenv("BASESTUB_S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("BASESTUB_S3_SECRET_KEY"),
		S3Bucket:       "basestub-test",
		S3Region:       "us-east-1",
		S3UsePathStyle: true,
	}
}

func TestS3BackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewS3Backend(ctx, s3ConfigFromEnv(t))
	require.NoError(t, err)

	key := "itest/hello.txt"
	require.NoError(t, backend.Put(ctx, key, []byte("Hello"), Meta{ContentType: "text/plain"}))

	data, meta, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), data)
	assert.Equal(t, "text/plain", meta.ContentType)

	ok, err := backend.Copy(ctx, key, "itest/hello-copy.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := backend.DeleteByPrefix(ctx, "itest/")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	exists, err := backend.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCachedBackendReadThrough(t *testing.T) {
	redisURL := os.Getenv("BASESTUB_REDIS_URL")
	if redisURL == "" {
		t.Skip("BASESTUB_REDIS_URL not set")
	}

	ctx := context.Background()
	inner := NewMemoryBackend()
	cached, err := NewCachedBackend(ctx, inner, Config{RedisURL: redisURL})
	require.NoError(t, err)
	defer cached.Close()

	key := "itest-cache/f.bin"
	require.NoError(t, cached.Put(ctx, key, []byte("bytes"), Meta{ContentType: "application/octet-stream"}))

	// First Get populates the cache, second is served from it; deleting
	// from the inner backend directly exposes which path served.
	data, _, err := cached.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)

	_, err = inner.Delete(ctx, key)
	require.NoError(t, err)

	data, _, err = cached.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data, "expected cache hit after inner delete")

	// Delete invalidates the cache too.
	_, err = cached.Delete(ctx, key)
	require.NoError(t, err)
	_, _, err = cached.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
