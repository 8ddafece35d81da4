package storagehandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestub/basestub/pkg/schema"
	"github.com/basestub/basestub/pkg/sqlengine"
	"github.com/basestub/basestub/pkg/storageblob"
)

type staticKeys struct{ key []byte }

func (s staticKeys) SigningKey(ctx context.Context) ([]byte, error) { return s.key, nil }

func newTestHandler(t *testing.T) (*Handler, *storageblob.MemoryBackend) {
	t.Helper()
	ctx := context.Background()

	engine, err := sqlengine.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	require.NoError(t, schema.InstallStorageSchema(ctx, engine))

	backend := storageblob.NewMemoryBackend()
	return New(engine, backend, staticKeys{key: []byte("0123456789abcdef0123456789abcdef")}), backend
}

func createBucket(t *testing.T, h *Handler, req CreateBucketRequest) *Bucket {
	t.Helper()
	b, err := h.CreateBucket(context.Background(), req)
	require.NoError(t, err)
	return b
}

func TestBucketLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	b := createBucket(t, h, CreateBucketRequest{ID: "avatars", Public: true})
	assert.Equal(t, "avatars", b.ID)
	assert.Equal(t, "avatars", b.Name)
	assert.True(t, b.Public)

	_, err := h.CreateBucket(ctx, CreateBucketRequest{ID: "avatars"})
	assert.ErrorIs(t, err, ErrBucketExists)

	limit := int64(1024)
	updated, err := h.UpdateBucket(ctx, "avatars", CreateBucketRequest{
		Public:           false,
		FileSizeLimit:    &limit,
		AllowedMimeTypes: []string{"image/*"},
	})
	require.NoError(t, err)
	assert.False(t, updated.Public)
	require.NotNil(t, updated.FileSizeLimit)
	assert.Equal(t, int64(1024), *updated.FileSizeLimit)
	assert.Equal(t, []string{"image/*"}, updated.AllowedMimeTypes)

	buckets, err := h.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)

	require.NoError(t, h.DeleteBucket(ctx, "avatars"))
	_, err = h.GetBucket(ctx, "avatars")
	assert.ErrorIs(t, err, ErrBucketNotFound)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	obj, err := h.Upload(ctx, UploadRequest{
		BucketID:    "b",
		Name:        "hello.txt",
		Data:        []byte("Hello"),
		ContentType: "text/plain",
		OwnerID:     "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "b", obj.BucketID)
	assert.Equal(t, "hello.txt", obj.Name)
	assert.Equal(t, "user-1", obj.OwnerID)
	assert.NotEmpty(t, obj.Version)
	assert.Equal(t, "text/plain", obj.Metadata["mimetype"])
	assert.Equal(t, DefaultCacheControl, obj.Metadata["cacheControl"])
	assert.Len(t, obj.Metadata["eTag"], 16)

	data, meta, downloaded, err := h.Download(ctx, "b", "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), data)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, obj.ID, downloaded.ID)
}

func TestUploadDuplicateAndUpsert(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	first, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "f", Data: []byte("v1")})
	require.NoError(t, err)

	_, err = h.Upload(ctx, UploadRequest{BucketID: "b", Name: "f", Data: []byte("v2")})
	assert.ErrorIs(t, err, ErrObjectExists)

	second, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "f", Data: []byte("v2"), Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.Version, second.Version)

	data, _, _, err := h.Download(ctx, "b", "f")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestUploadConstraints(t *testing.T) {
	h, backend := newTestHandler(t)
	ctx := context.Background()

	limit := int64(3)
	createBucket(t, h, CreateBucketRequest{
		ID:               "small",
		FileSizeLimit:    &limit,
		AllowedMimeTypes: []string{"text/plain", "image/*"},
	})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "small", Name: "big", Data: []byte("too large"), ContentType: "text/plain"})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = h.Upload(ctx, UploadRequest{BucketID: "small", Name: "bad", Data: []byte("x"), ContentType: "application/json"})
	assert.ErrorIs(t, err, ErrMimeTypeNotAllowed)

	// nothing written on rejection
	assert.Empty(t, backend.Keys())
	exists, err := h.Exists(ctx, "small", "big")
	require.NoError(t, err)
	assert.False(t, exists)

	// prefix pattern admits any image subtype
	_, err = h.Upload(ctx, UploadRequest{BucketID: "small", Name: "i", Data: []byte("p"), ContentType: "image/png"})
	assert.NoError(t, err)
}

func TestUploadMissingBucket(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Upload(context.Background(), UploadRequest{BucketID: "nope", Name: "f", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrBucketNotFound)
}

func TestDownloadTouchesLastAccessed(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	obj, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "f", Data: []byte("x")})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, _, _, err = h.Download(ctx, "b", "f")
	require.NoError(t, err)

	info, err := h.GetObjectInfo(ctx, "b", "f")
	require.NoError(t, err)
	assert.True(t, info.LastAccessedAt.After(obj.LastAccessedAt))
}

func TestDownloadRowWithoutBlob(t *testing.T) {
	h, backend := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "f", Data: []byte("x")})
	require.NoError(t, err)

	_, err = backend.Delete(ctx, "b/f")
	require.NoError(t, err)

	_, _, _, err = h.Download(ctx, "b", "f")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestRemove(t *testing.T) {
	h, backend := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	for _, name := range []string{"a", "c"} {
		_, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: name, Data: []byte("x")})
		require.NoError(t, err)
	}

	removed, err := h.Remove(ctx, "b", []string{"a", "missing", "c"})
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Empty(t, backend.Keys())
}

func TestDeleteBucketRequiresEmpty(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "f", Data: []byte("x")})
	require.NoError(t, err)

	assert.ErrorIs(t, h.DeleteBucket(ctx, "b"), ErrBucketNotEmpty)

	require.NoError(t, h.EmptyBucket(ctx, "b"))
	assert.NoError(t, h.DeleteBucket(ctx, "b"))
}

func TestListPrefixAndPagination(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	for _, name := range []string{"docs/a.txt", "docs/b.txt", "images/c.png"} {
		_, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: name, Data: []byte("x")})
		require.NoError(t, err)
	}

	objs, err := h.List(ctx, "b", ListOptions{Prefix: "docs/"})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "docs/a.txt", objs[0].Name)
	assert.Equal(t, "docs/b.txt", objs[1].Name)

	objs, err = h.List(ctx, "b", ListOptions{Limit: 1, Offset: 1, SortBy: &SortBy{Column: "name", Order: "desc"}})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "docs/b.txt", objs[0].Name)

	// unknown sort column falls back to name
	objs, err = h.List(ctx, "b", ListOptions{SortBy: &SortBy{Column: "owner_id; DROP TABLE"}})
	require.NoError(t, err)
	assert.Len(t, objs, 3)

	objs, err = h.List(ctx, "b", ListOptions{Search: "c.pn"})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "images/c.png", objs[0].Name)
}

func TestMoveAndCopy(t *testing.T) {
	h, backend := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})
	createBucket(t, h, CreateBucketRequest{ID: "b2"})

	src, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "src.txt", Data: []byte("payload")})
	require.NoError(t, err)

	copied, err := h.Copy(ctx, MoveRequest{BucketID: "b", SourceKey: "src.txt", DestinationKey: "copy.txt"})
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, copied.ID)
	assert.Equal(t, src.Metadata["eTag"], copied.Metadata["eTag"])

	moved, err := h.Move(ctx, MoveRequest{BucketID: "b", SourceKey: "src.txt", DestinationBucket: "b2", DestinationKey: "moved.txt"})
	require.NoError(t, err)
	assert.Equal(t, src.ID, moved.ID)
	assert.Equal(t, "b2", moved.BucketID)

	_, err = h.GetObjectInfo(ctx, "b", "src.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, []string{"b/copy.txt", "b2/moved.txt"}, backend.Keys())

	data, _, _, err := h.Download(ctx, "b2", "moved.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestSignedTokenRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "d"})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "d", Name: "report.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	token, err := h.CreateSignedToken(ctx, "d", "report.pdf", time.Minute)
	require.NoError(t, err)

	payload, err := h.VerifySignedToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "d", payload.BucketID)
	assert.Equal(t, "report.pdf", payload.ObjectName)
	assert.Greater(t, payload.Exp, time.Now().Unix())
}

func TestSignedTokenExpired(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "d"})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "d", Name: "f", Data: []byte("x")})
	require.NoError(t, err)

	token, err := h.CreateSignedToken(ctx, "d", "f", -time.Minute)
	require.NoError(t, err)

	_, err = h.VerifySignedToken(ctx, token)
	assert.ErrorIs(t, err, ErrSignedURLExpired)
}

func TestSignedTokenTampered(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "d"})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "d", Name: "f", Data: []byte("x")})
	require.NoError(t, err)

	token, err := h.CreateSignedToken(ctx, "d", "f", time.Minute)
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[2] ^= 0x01
	_, err = h.VerifySignedToken(ctx, string(tampered))
	assert.Error(t, err)

	_, err = h.VerifySignedToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCreateSignedURLsBatch(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "d"})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "d", Name: "a", Data: []byte("x")})
	require.NoError(t, err)

	urls := h.CreateSignedURLs(ctx, "d", []string{"a", "missing"}, time.Minute)
	require.Len(t, urls, 2)
	assert.Contains(t, urls[0].SignedURL, "/object/sign/d/a?token=")
	assert.Empty(t, urls[0].Error)
	assert.NotEmpty(t, urls[1].Error)
}

func TestReconcileAndSweep(t *testing.T) {
	h, backend := newTestHandler(t)
	ctx := context.Background()
	createBucket(t, h, CreateBucketRequest{ID: "b"})

	_, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "keep", Data: []byte("x")})
	require.NoError(t, err)
	_, err = h.Upload(ctx, UploadRequest{BucketID: "b", Name: "stranded", Data: []byte("x")})
	require.NoError(t, err)

	// strand the second row and plant an orphan blob
	_, err = backend.Delete(ctx, "b/stranded")
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, "b/orphan", []byte("x"), storageblob.Meta{}))

	rows, err := h.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	_, err = h.GetObjectInfo(ctx, "b", "stranded")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	blobs, err := h.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, blobs)
	assert.Equal(t, []string{"b/keep"}, backend.Keys())
}

func TestStorageEventsPublished(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	events := make(chan Event, 8)
	sub := h.OnStorageEvent(func(event string, payload Event) { events <- payload })
	defer h.Unsubscribe(sub)

	createBucket(t, h, CreateBucketRequest{ID: "b"})
	_, err := h.Upload(ctx, UploadRequest{BucketID: "b", Name: "f", Data: []byte("x")})
	require.NoError(t, err)

	// delivery is per-subscriber goroutines, so collect without
	// assuming order
	seen := map[EventType]Event{}
	for i := 0; i < 2; i++ {
		e := <-events
		seen[e.Type] = e
	}
	assert.Contains(t, seen, EventBucketCreated)
	require.Contains(t, seen, EventObjectCreated)
	assert.Equal(t, "f", seen[EventObjectCreated].Object)
}
