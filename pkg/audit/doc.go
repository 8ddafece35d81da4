// Package audit provides audit logging for security, compliance, and forensics.
//
// # Overview
//
// This package tracks authentication events, row-level-security denials,
// and storage operations with request context, and offers search, stats,
// export, and retention over the recorded trail.
//
// # Event Types
//
// Authentication: sign_in, sign_in_failed, sign_up, sign_out, token_refresh, token_invalid
// Authorization: rls.denied
// Storage: object_upload, object_delete, bucket_create, bucket_delete, signed_url_issued
// Access: object_read
//
// # Usage Example
//
// Log from anywhere via the context-carried logger:
//
//	ctx = audit.WithLogger(ctx, logger)
//	audit.QuickLog(ctx, audit.EventTypeAuthSignIn, audit.EventStatusSuccess, "user signed in")
//	audit.LogDenied(ctx, audit.EventTypeRLSDenied, audit.ResourceTypeTable, "notes", "write violates policy")
//
// Search the recorded trail:
//
//	results, err := store.Search(ctx, audit.SearchFilter{
//		StartTime:  &dayAgo,
//		UserID:     &userID,
//		EventTypes: []audit.EventType{audit.EventTypeAuthSignInFailed},
//		Status:     &failed,
//	})
//
// # Retention Policy
//
// Default: 90 days active retention
// Archiving: RetentionPolicy carries archive settings, but MemoryStore.Cleanup
// deletes expired events and does not archive or compress them
// Export: JSON, CSV, NDJSON formats for external analysis
//
// # Related Packages
//
//   - pkg/auth: Authentication events
//   - pkg/datarouter: RLS denial events
//   - pkg/storagehandler: Storage events
package audit
