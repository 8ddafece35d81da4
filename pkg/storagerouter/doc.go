// Package storagerouter maps the /storage/v1/* URL surface onto
// pkg/storagehandler methods and encodes the responses: bucket CRUD,
// object upload/download/list/move/copy/remove, signed URLs, and the
// render endpoints (which return the original bytes untransformed).
//
// Authenticated routes bind the caller's identity before dispatching
// so each uploaded object records its owner; signed-URL and
// public-bucket downloads skip auth entirely, mirroring the real
// storage server's privileged role.
package storagerouter
