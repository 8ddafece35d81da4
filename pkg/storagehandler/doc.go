// Package storagehandler implements the Storage subsystem's business
// logic: bucket CRUD, object upload/download/list/move/copy/remove,
// and HMAC-signed short-lived download URLs.
//
// Metadata rows live in the storage_buckets / storage_objects tables;
// file bytes live in a pkg/storageblob.Backend keyed
// "<bucket>/<name>". Upload writes metadata first and the blob second,
// so a concurrent listing never observes bytes without a describing
// row; the reverse window (a row whose blob write failed) surfaces as
// "not found" on download and is reconciled by the Sweeper.
//
// Storage operations run privileged, mirroring real Supabase where the
// storage server executes RESET ROLE: row-level policies are not
// consulted here, but the uploader's bound identity is still recorded
// as each object's owner.
package storagehandler
