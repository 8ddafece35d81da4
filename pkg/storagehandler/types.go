package storagehandler

import (
	"errors"
	"time"
)

var (
	ErrBucketNotFound     = errors.New("storage: bucket not found")
	ErrBucketExists       = errors.New("storage: bucket already exists")
	ErrBucketNotEmpty     = errors.New("storage: Bucket not empty")
	ErrBucketNotPublic    = errors.New("storage: bucket is not public")
	ErrObjectNotFound     = errors.New("storage: object not found")
	ErrObjectExists       = errors.New("storage: object already exists")
	ErrPayloadTooLarge    = errors.New("storage: payload exceeds bucket file size limit")
	ErrMimeTypeNotAllowed = errors.New("storage: mime type not allowed by bucket")
	ErrInvalidSignature   = errors.New("storage: invalid signature")
	ErrSignedURLExpired   = errors.New("storage: signed URL expired")
)

// Bucket is a row of storage_buckets.
type Bucket struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Public           bool      `json:"public"`
	FileSizeLimit    *int64    `json:"file_size_limit,omitempty"`
	AllowedMimeTypes []string  `json:"allowed_mime_types,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Object is a row of storage_objects. Metadata is the system-owned
// projection (eTag, size, mimetype, cacheControl, lastModified);
// UserMetadata is the caller's open-schema map.
type Object struct {
	ID             string         `json:"id"`
	BucketID       string         `json:"bucket_id"`
	Name           string         `json:"name"`
	OwnerID        string         `json:"owner_id,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	UserMetadata   map[string]any `json:"user_metadata,omitempty"`
	Version        string         `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
}

// Key returns the blob backend key for the object.
func (o *Object) Key() string {
	return o.BucketID + "/" + o.Name
}

// CreateBucketRequest is the input to CreateBucket and UpdateBucket.
type CreateBucketRequest struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Public           bool     `json:"public"`
	FileSizeLimit    *int64   `json:"file_size_limit,omitempty"`
	AllowedMimeTypes []string `json:"allowed_mime_types,omitempty"`
}

// UploadRequest is the input to Upload.
type UploadRequest struct {
	BucketID     string
	Name         string
	Data         []byte
	ContentType  string
	CacheControl string
	Upsert       bool
	UserMetadata map[string]any
	OwnerID      string
}

// MoveRequest is the input to Move and Copy. DestinationBucket
// defaults to BucketID when empty.
type MoveRequest struct {
	BucketID          string `json:"bucketId"`
	SourceKey         string `json:"sourceKey"`
	DestinationBucket string `json:"destinationBucket,omitempty"`
	DestinationKey    string `json:"destinationKey"`
}

// SortBy names an allow-listed object column and direction for List.
type SortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// ListOptions tunes List. Limit defaults to 100.
type ListOptions struct {
	Prefix string  `json:"prefix"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	SortBy *SortBy `json:"sortBy,omitempty"`
	Search string  `json:"search,omitempty"`
}

// EventType identifies a storage lifecycle event.
type EventType string

const (
	EventBucketCreated EventType = "BUCKET_CREATED"
	EventBucketDeleted EventType = "BUCKET_DELETED"
	EventObjectCreated EventType = "OBJECT_CREATED"
	EventObjectRemoved EventType = "OBJECT_REMOVED"
)

// Event is published on the handler's broadcaster for every bucket and
// object lifecycle change.
type Event struct {
	Type   EventType
	Bucket string
	Object string
}

// DefaultCacheControl is stamped into an object's system metadata when
// the uploader supplies none.
const DefaultCacheControl = "max-age=3600"
