package storagehandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basestub/basestub/pkg/audit"
)

const bucketColumns = `id, name, public, file_size_limit, allowed_mime_types, created_at, updated_at`

func scanBucket(row map[string]any) *Bucket {
	b := &Bucket{
		ID:        asString(row["id"]),
		Name:      asString(row["name"]),
		Public:    asInt64(row["public"]) != 0,
		CreatedAt: asTime(row["created_at"]),
		UpdatedAt: asTime(row["updated_at"]),
	}
	if row["file_size_limit"] != nil {
		limit := asInt64(row["file_size_limit"])
		b.FileSizeLimit = &limit
	}
	if encoded := asString(row["allowed_mime_types"]); encoded != "" {
		json.Unmarshal([]byte(encoded), &b.AllowedMimeTypes)
	}
	return b
}

// ListBuckets returns every bucket ordered by name.
func (h *Handler) ListBuckets(ctx context.Context) ([]*Bucket, error) {
	rows, _, err := h.engine.Query(ctx, `SELECT `+bucketColumns+` FROM storage_buckets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list buckets: %w", err)
	}
	buckets := make([]*Bucket, len(rows))
	for i, row := range rows {
		buckets[i] = scanBucket(row)
	}
	return buckets, nil
}

// GetBucket looks up one bucket by id.
func (h *Handler) GetBucket(ctx context.Context, id string) (*Bucket, error) {
	rows, _, err := h.engine.Query(ctx, `SELECT `+bucketColumns+` FROM storage_buckets WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("storage: get bucket: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrBucketNotFound
	}
	return scanBucket(rows[0]), nil
}

// CreateBucket inserts a bucket; a duplicate id or name fails with
// ErrBucketExists.
func (h *Handler) CreateBucket(ctx context.Context, req CreateBucketRequest) (*Bucket, error) {
	ctx, span := tracer.Start(ctx, "storage.CreateBucket")
	defer span.End()

	if req.ID == "" {
		req.ID = req.Name
	}
	if req.Name == "" {
		req.Name = req.ID
	}
	if req.ID == "" {
		return nil, fmt.Errorf("storage: bucket id is required")
	}

	var exists int64
	row := h.engine.QueryRow(ctx, `SELECT COUNT(*) FROM storage_buckets WHERE id = ? OR name = ?`, req.ID, req.Name)
	if err := row.Scan(&exists); err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if exists > 0 {
		return nil, ErrBucketExists
	}

	mimeTypes, err := encodeMimeTypes(req.AllowedMimeTypes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = h.engine.Exec(ctx, `
		INSERT INTO storage_buckets (id, name, public, file_size_limit, allowed_mime_types, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Name, boolToInt(req.Public), nullableInt64(req.FileSizeLimit), mimeTypes, now, now)
	if err != nil {
		return nil, fmt.Errorf("storage: insert bucket: %w", err)
	}

	_ = audit.QuickLog(ctx, audit.EventTypeStorageBucketCreate, audit.EventStatusSuccess, "bucket created: "+req.ID)
	h.publish(Event{Type: EventBucketCreated, Bucket: req.ID})
	return h.GetBucket(ctx, req.ID)
}

// UpdateBucket replaces a bucket's public flag and constraints.
func (h *Handler) UpdateBucket(ctx context.Context, id string, req CreateBucketRequest) (*Bucket, error) {
	if _, err := h.GetBucket(ctx, id); err != nil {
		return nil, err
	}

	mimeTypes, err := encodeMimeTypes(req.AllowedMimeTypes)
	if err != nil {
		return nil, err
	}

	_, err = h.engine.Exec(ctx, `
		UPDATE storage_buckets
		SET public = ?, file_size_limit = ?, allowed_mime_types = ?, updated_at = ?
		WHERE id = ?`,
		boolToInt(req.Public), nullableInt64(req.FileSizeLimit), mimeTypes, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("storage: update bucket: %w", err)
	}
	return h.GetBucket(ctx, id)
}

// EmptyBucket deletes every object row in the bucket, then every blob
// under its key prefix. The bucket itself survives.
func (h *Handler) EmptyBucket(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "storage.EmptyBucket")
	defer span.End()

	if _, err := h.GetBucket(ctx, id); err != nil {
		return err
	}

	if _, err := h.engine.Exec(ctx, `DELETE FROM storage_objects WHERE bucket_id = ?`, id); err != nil {
		return fmt.Errorf("storage: empty bucket: %w", err)
	}
	if _, err := h.blobs.DeleteByPrefix(ctx, id+"/"); err != nil {
		return fmt.Errorf("storage: empty bucket blobs: %w", err)
	}
	return nil
}

// DeleteBucket removes a bucket; it must already be empty.
func (h *Handler) DeleteBucket(ctx context.Context, id string) error {
	if _, err := h.GetBucket(ctx, id); err != nil {
		return err
	}

	var count int64
	row := h.engine.QueryRow(ctx, `SELECT COUNT(*) FROM storage_objects WHERE bucket_id = ?`, id)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("storage: count bucket objects: %w", err)
	}
	if count > 0 {
		return ErrBucketNotEmpty
	}

	if _, err := h.engine.Exec(ctx, `DELETE FROM storage_buckets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete bucket: %w", err)
	}

	_ = audit.QuickLog(ctx, audit.EventTypeStorageBucketDelete, audit.EventStatusSuccess, "bucket deleted: "+id)
	h.publish(Event{Type: EventBucketDeleted, Bucket: id})
	return nil
}

func encodeMimeTypes(types []string) (any, error) {
	if len(types) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(types)
	if err != nil {
		return nil, fmt.Errorf("storage: encode mime types: %w", err)
	}
	return string(encoded), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
