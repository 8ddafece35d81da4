// Package storageblob is the pluggable blob store behind the Storage
// subsystem. A Backend holds file bytes addressed by "<bucket>/<name>"
// keys; the metadata rows describing those bytes live in the SQL
// schema and are managed by pkg/storagehandler, never here.
//
// Three implementations ship with the package:
//
//   - MemoryBackend, the default: a mutex-guarded in-process map.
//   - S3Backend: AWS S3 or any S3-compatible endpoint (MinIO) via
//     aws-sdk-go-v2, for deployments that want durable bytes.
//   - CachedBackend: wraps another Backend with a Redis read-through
//     cache on Get/Exists, invalidated on every write.
//
// NewBackend selects among them from a Config, following the same
// type-switch construction pattern the rest of the codebase uses for
// environment-driven backends.
package storageblob
