package storagehandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/basestub/basestub/pkg/audit"
	"github.com/basestub/basestub/pkg/storageblob"
)

const objectColumns = `id, bucket_id, name, owner_id, metadata, user_metadata, version, created_at, updated_at, last_accessed_at`

func scanObject(row map[string]any) *Object {
	return &Object{
		ID:             asString(row["id"]),
		BucketID:       asString(row["bucket_id"]),
		Name:           asString(row["name"]),
		OwnerID:        asString(row["owner_id"]),
		Metadata:       unmarshalJSON(asString(row["metadata"])),
		UserMetadata:   unmarshalJSON(asString(row["user_metadata"])),
		Version:        asString(row["version"]),
		CreatedAt:      asTime(row["created_at"]),
		UpdatedAt:      asTime(row["updated_at"]),
		LastAccessedAt: asTime(row["last_accessed_at"]),
	}
}

// computeETag is the first 8 bytes of the payload's SHA-256, hex.
func computeETag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// checkMimeType matches contentType against the bucket's allow-list,
// where each pattern is an exact MIME or "prefix/*".
func checkMimeType(contentType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, pattern := range allowed {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(contentType, prefix+"/") {
				return true
			}
			continue
		}
		if contentType == pattern {
			return true
		}
	}
	return false
}

// Upload validates the bucket's constraints, writes the object row,
// then writes the blob. A non-upsert duplicate fails with
// ErrObjectExists; constraint violations fail before anything is
// written.
func (h *Handler) Upload(ctx context.Context, req UploadRequest) (*Object, error) {
	ctx, span := tracer.Start(ctx, "storage.Upload", trace.WithAttributes(
		attribute.String("storage.bucket", req.BucketID),
		attribute.String("storage.object", req.Name),
	))
	defer span.End()

	bucket, err := h.GetBucket(ctx, req.BucketID)
	if err != nil {
		return nil, err
	}
	if bucket.FileSizeLimit != nil && int64(len(req.Data)) > *bucket.FileSizeLimit {
		return nil, ErrPayloadTooLarge
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if !checkMimeType(contentType, bucket.AllowedMimeTypes) {
		return nil, ErrMimeTypeNotAllowed
	}

	cacheControl := req.CacheControl
	if cacheControl == "" {
		cacheControl = DefaultCacheControl
	}

	now := time.Now().UTC()
	metadata := map[string]any{
		"eTag":           computeETag(req.Data),
		"size":           len(req.Data),
		"mimetype":       contentType,
		"cacheControl":   cacheControl,
		"lastModified":   now.Format(time.RFC3339),
		"contentLength":  len(req.Data),
		"httpStatusCode": 200,
	}
	encodedMeta, err := marshalJSON(metadata)
	if err != nil {
		return nil, err
	}
	encodedUserMeta, err := marshalJSON(req.UserMetadata)
	if err != nil {
		return nil, err
	}

	existing, err := h.lookupObject(ctx, req.BucketID, req.Name)
	if err != nil && err != ErrObjectNotFound {
		return nil, err
	}

	version := uuid.NewString()
	switch {
	case existing == nil:
		_, err = h.engine.Exec(ctx, `
			INSERT INTO storage_objects (id, bucket_id, name, owner_id, metadata, user_metadata, version, created_at, updated_at, last_accessed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), req.BucketID, req.Name, req.OwnerID, encodedMeta, encodedUserMeta, version, now, now, now)
	case req.Upsert:
		_, err = h.engine.Exec(ctx, `
			UPDATE storage_objects
			SET owner_id = ?, metadata = ?, user_metadata = ?, version = ?, updated_at = ?
			WHERE bucket_id = ? AND name = ?`,
			req.OwnerID, encodedMeta, encodedUserMeta, version, now, req.BucketID, req.Name)
	default:
		return nil, ErrObjectExists
	}
	if err != nil {
		return nil, fmt.Errorf("storage: write object row: %w", err)
	}

	err = h.blobs.Put(ctx, req.BucketID+"/"+req.Name, req.Data, storageblob.Meta{
		ContentType:  contentType,
		Size:         int64(len(req.Data)),
		CacheControl: cacheControl,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: write blob: %w", err)
	}

	_ = audit.QuickLog(ctx, audit.EventTypeStorageObjectUpload, audit.EventStatusSuccess,
		"object uploaded: "+req.BucketID+"/"+req.Name)
	h.publish(Event{Type: EventObjectCreated, Bucket: req.BucketID, Object: req.Name})
	return h.lookupObject(ctx, req.BucketID, req.Name)
}

func (h *Handler) lookupObject(ctx context.Context, bucket, name string) (*Object, error) {
	rows, _, err := h.engine.Query(ctx, `SELECT `+objectColumns+` FROM storage_objects WHERE bucket_id = ? AND name = ?`, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("storage: query object: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrObjectNotFound
	}
	return scanObject(rows[0]), nil
}

// Download refreshes last_accessed_at and returns the blob bytes, the
// blob's transport metadata, and the object row. A row whose blob is
// missing reports not found.
func (h *Handler) Download(ctx context.Context, bucket, name string) ([]byte, storageblob.Meta, *Object, error) {
	ctx, span := tracer.Start(ctx, "storage.Download", trace.WithAttributes(
		attribute.String("storage.bucket", bucket),
		attribute.String("storage.object", name),
	))
	defer span.End()

	obj, err := h.lookupObject(ctx, bucket, name)
	if err != nil {
		return nil, storageblob.Meta{}, nil, err
	}

	if _, err := h.engine.Exec(ctx, `UPDATE storage_objects SET last_accessed_at = ? WHERE id = ?`, time.Now().UTC(), obj.ID); err != nil {
		return nil, storageblob.Meta{}, nil, fmt.Errorf("storage: touch last_accessed_at: %w", err)
	}

	data, meta, err := h.blobs.Get(ctx, obj.Key())
	if err != nil {
		if err == storageblob.ErrNotFound {
			return nil, storageblob.Meta{}, nil, ErrObjectNotFound
		}
		return nil, storageblob.Meta{}, nil, fmt.Errorf("storage: read blob: %w", err)
	}

	_ = audit.QuickLog(ctx, audit.EventTypeAccessObjectRead, audit.EventStatusSuccess,
		"object downloaded: "+bucket+"/"+name)
	return data, meta, obj, nil
}

// Exists reports whether an object row exists for (bucket, name).
func (h *Handler) Exists(ctx context.Context, bucket, name string) (bool, error) {
	var count int64
	row := h.engine.QueryRow(ctx, `SELECT COUNT(*) FROM storage_objects WHERE bucket_id = ? AND name = ?`, bucket, name)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("storage: check object: %w", err)
	}
	return count > 0, nil
}

// GetObjectInfo returns the object row without refreshing
// last_accessed_at.
func (h *Handler) GetObjectInfo(ctx context.Context, bucket, name string) (*Object, error) {
	return h.lookupObject(ctx, bucket, name)
}

// Remove deletes the named objects' rows, then their blobs, returning
// the rows that were removed. Unknown paths are skipped silently,
// matching the Supabase batch-remove contract.
func (h *Handler) Remove(ctx context.Context, bucket string, paths []string) ([]*Object, error) {
	ctx, span := tracer.Start(ctx, "storage.Remove", trace.WithAttributes(attribute.String("storage.bucket", bucket)))
	defer span.End()

	var removed []*Object
	for _, name := range paths {
		obj, err := h.lookupObject(ctx, bucket, name)
		if err == ErrObjectNotFound {
			continue
		}
		if err != nil {
			return removed, err
		}

		if _, err := h.engine.Exec(ctx, `DELETE FROM storage_objects WHERE id = ?`, obj.ID); err != nil {
			return removed, fmt.Errorf("storage: delete object row: %w", err)
		}
		if _, err := h.blobs.Delete(ctx, obj.Key()); err != nil {
			return removed, fmt.Errorf("storage: delete blob: %w", err)
		}

		removed = append(removed, obj)
		_ = audit.QuickLog(ctx, audit.EventTypeStorageObjectDelete, audit.EventStatusSuccess,
			"object removed: "+bucket+"/"+name)
		h.publish(Event{Type: EventObjectRemoved, Bucket: bucket, Object: name})
	}
	return removed, nil
}

// listSortColumns is the allow-list for List's sort column; anything
// else silently falls back to name.
var listSortColumns = map[string]bool{
	"name":             true,
	"created_at":       true,
	"updated_at":       true,
	"last_accessed_at": true,
}

// List returns the bucket's objects filtered by prefix (and optional
// substring search), ordered and paginated.
func (h *Handler) List(ctx context.Context, bucket string, opts ListOptions) ([]*Object, error) {
	if _, err := h.GetBucket(ctx, bucket); err != nil {
		return nil, err
	}

	column := "name"
	if opts.SortBy != nil && listSortColumns[opts.SortBy.Column] {
		column = opts.SortBy.Column
	}
	direction := "ASC"
	if opts.SortBy != nil && strings.EqualFold(opts.SortBy.Order, "desc") {
		direction = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + objectColumns + ` FROM storage_objects WHERE bucket_id = ? AND name LIKE ? ESCAPE '\'`
	params := []any{bucket, escapeLike(opts.Prefix) + "%"}
	if opts.Search != "" {
		query += ` AND name LIKE ? ESCAPE '\'`
		params = append(params, "%"+escapeLike(opts.Search)+"%")
	}
	query += fmt.Sprintf(` ORDER BY %s %s LIMIT ? OFFSET ?`, column, direction)
	params = append(params, limit, opts.Offset)

	rows, _, err := h.engine.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("storage: list objects: %w", err)
	}
	objects := make([]*Object, len(rows))
	for i, row := range rows {
		objects[i] = scanObject(row)
	}
	return objects, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// Move re-keys an object row and mirrors the blob: copy to the new
// key, then delete the source. A failed final delete leaves an
// orphaned source blob for the Sweeper.
func (h *Handler) Move(ctx context.Context, req MoveRequest) (*Object, error) {
	return h.transfer(ctx, req, true)
}

// Copy inserts a new object row with the source's metadata and copies
// the blob.
func (h *Handler) Copy(ctx context.Context, req MoveRequest) (*Object, error) {
	return h.transfer(ctx, req, false)
}

func (h *Handler) transfer(ctx context.Context, req MoveRequest, deleteSource bool) (*Object, error) {
	destBucket := req.DestinationBucket
	if destBucket == "" {
		destBucket = req.BucketID
	}
	if _, err := h.GetBucket(ctx, destBucket); err != nil {
		return nil, err
	}

	src, err := h.lookupObject(ctx, req.BucketID, req.SourceKey)
	if err != nil {
		return nil, err
	}
	if existing, err := h.lookupObject(ctx, destBucket, req.DestinationKey); err == nil && existing.ID != src.ID {
		return nil, ErrObjectExists
	}

	now := time.Now().UTC()
	if deleteSource {
		_, err = h.engine.Exec(ctx, `
			UPDATE storage_objects SET bucket_id = ?, name = ?, updated_at = ? WHERE id = ?`,
			destBucket, req.DestinationKey, now, src.ID)
	} else {
		encodedMeta, merr := marshalJSON(src.Metadata)
		if merr != nil {
			return nil, merr
		}
		encodedUserMeta, merr := marshalJSON(src.UserMetadata)
		if merr != nil {
			return nil, merr
		}
		_, err = h.engine.Exec(ctx, `
			INSERT INTO storage_objects (id, bucket_id, name, owner_id, metadata, user_metadata, version, created_at, updated_at, last_accessed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), destBucket, req.DestinationKey, src.OwnerID, encodedMeta, encodedUserMeta, uuid.NewString(), now, now, now)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: transfer object row: %w", err)
	}

	ok, err := h.blobs.Copy(ctx, src.Key(), destBucket+"/"+req.DestinationKey)
	if err != nil {
		return nil, fmt.Errorf("storage: copy blob: %w", err)
	}
	if !ok {
		return nil, ErrObjectNotFound
	}
	if deleteSource {
		if _, err := h.blobs.Delete(ctx, src.Key()); err != nil {
			// Both paths stay reachable; the old blob is an orphan the
			// Sweeper reclaims.
			return h.lookupObject(ctx, destBucket, req.DestinationKey)
		}
	}

	return h.lookupObject(ctx, destBucket, req.DestinationKey)
}
