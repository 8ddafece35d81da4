package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthSignIn         EventType = "auth.sign_in"
	EventTypeAuthSignInFailed   EventType = "auth.sign_in_failed"
	EventTypeAuthSignUp         EventType = "auth.sign_up"
	EventTypeAuthSignOut        EventType = "auth.sign_out"
	EventTypeAuthTokenRefresh   EventType = "auth.token_refresh"
	EventTypeAuthTokenRevoke    EventType = "auth.token_revoke"
	EventTypeAuthTokenInvalid   EventType = "auth.token_invalid"

	// Row-level security events
	EventTypeRLSDenied EventType = "rls.denied"

	// Storage events
	EventTypeStorageObjectUpload EventType = "storage.object_upload"
	EventTypeStorageObjectDelete EventType = "storage.object_delete"
	EventTypeStorageBucketCreate EventType = "storage.bucket_create"
	EventTypeStorageBucketDelete EventType = "storage.bucket_delete"
	EventTypeStorageSignedURL    EventType = "storage.signed_url_issued"

	// Read/access events (for sensitive operations)
	EventTypeAccessObjectRead EventType = "access.object_read"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeSession ResourceType = "session"
	ResourceTypeTable   ResourceType = "table"
	ResourceTypeBucket  ResourceType = "bucket"
	ResourceTypeObject  ResourceType = "object"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// Core fields
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   *string `json:"user_id,omitempty"`
	Username string  `json:"username,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID   *string
	Username string

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Resource filters
	ResourceType ResourceType
	ResourceID   string
	ResourceName string

	// Request context filters
	IPAddress string
	Method    string
	Path      string

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // field name to sort by
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// AuditStats represents statistics about audit logs
type AuditStats struct {
	TotalEvents        int64                  `json:"total_events"`
	EventsByType       map[EventType]int64    `json:"events_by_type"`
	EventsByStatus     map[EventStatus]int64  `json:"events_by_status"`
	EventsByUser       map[string]int64       `json:"events_by_user"`
	EventsByResource   map[ResourceType]int64 `json:"events_by_resource"`
	UniqueUsers        int64                  `json:"unique_users"`
	UniqueIPs          int64                  `json:"unique_ips"`
	FailedAuthAttempts int64                  `json:"failed_auth_attempts"`
	AccessDenials      int64                  `json:"access_denials"`
	TimeRange          *TimeRange             `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit logs should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int

	// ArchiveEnabled selects archiving old logs instead of deleting them.
	// MemoryStore.Cleanup ignores it and the other archive fields: it
	// always deletes.
	ArchiveEnabled bool

	// ArchivePath is where archived logs should be stored
	ArchivePath string

	// CompressArchive determines if archived logs should be compressed
	CompressArchive bool
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:   90,
		ArchiveEnabled:  true,
		ArchivePath:     "/var/basestub/audit-archive",
		CompressArchive: true,
	}
}
