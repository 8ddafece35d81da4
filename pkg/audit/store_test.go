package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(events ...*AuditEvent) *MemoryStore {
	s := NewMemoryStore()
	for _, e := range events {
		s.Record(e)
	}
	return s
}

func event(id string, age time.Duration, mutate func(*AuditEvent)) *AuditEvent {
	e := &AuditEvent{
		ID:        id,
		Timestamp: time.Now().UTC().Add(-age),
		EventType: EventTypeAuthSignIn,
		Status:    EventStatusSuccess,
	}
	if mutate != nil {
		mutate(e)
	}
	return e
}

func TestMemoryStoreSearchFilters(t *testing.T) {
	ctx := context.Background()
	alice := "alice"
	s := seedStore(
		event("1", time.Minute, func(e *AuditEvent) { e.UserID = &alice }),
		event("2", 2*time.Minute, func(e *AuditEvent) {
			e.EventType = EventTypeAuthSignInFailed
			e.Status = EventStatusFailure
		}),
		event("3", 3*time.Minute, func(e *AuditEvent) {
			e.EventType = EventTypeStorageObjectUpload
			e.ResourceType = ResourceTypeObject
			e.ResourceID = "b/f.txt"
		}),
	)

	all, err := s.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// newest first
	assert.Equal(t, "1", all[0].ID)

	byUser, err := s.Search(ctx, SearchFilter{UserID: &alice})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "1", byUser[0].ID)

	byType, err := s.Search(ctx, SearchFilter{EventTypes: []EventType{EventTypeAuthSignInFailed}})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	failed := EventStatusFailure
	byStatus, err := s.Search(ctx, SearchFilter{Status: &failed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	byResource, err := s.Search(ctx, SearchFilter{ResourceType: ResourceTypeObject, ResourceID: "b/f.txt"})
	require.NoError(t, err)
	require.Len(t, byResource, 1)
}

func TestMemoryStoreSearchPagination(t *testing.T) {
	ctx := context.Background()
	s := seedStore(
		event("1", time.Minute, nil),
		event("2", 2*time.Minute, nil),
		event("3", 3*time.Minute, nil),
	)

	page, err := s.Search(ctx, SearchFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = s.Search(ctx, SearchFilter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "3", page[0].ID)

	page, err = s.Search(ctx, SearchFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryStoreGet(t *testing.T) {
	ctx := context.Background()
	s := seedStore(event("1", time.Minute, nil))

	got, err := s.Get(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, got)

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	alice, bob := "alice", "bob"
	s := seedStore(
		event("1", time.Minute, func(e *AuditEvent) { e.UserID = &alice; e.IPAddress = "10.0.0.1" }),
		event("2", time.Minute, func(e *AuditEvent) { e.UserID = &bob; e.IPAddress = "10.0.0.2" }),
		event("3", time.Minute, func(e *AuditEvent) {
			e.EventType = EventTypeAuthSignInFailed
			e.Status = EventStatusFailure
		}),
		event("4", time.Minute, func(e *AuditEvent) {
			e.EventType = EventTypeRLSDenied
			e.Status = EventStatusDenied
		}),
	)

	stats, err := s.GetStats(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.UniqueUsers)
	assert.Equal(t, int64(2), stats.UniqueIPs)
	assert.Equal(t, int64(1), stats.FailedAuthAttempts)
	assert.Equal(t, int64(1), stats.AccessDenials)
	assert.Equal(t, int64(2), stats.EventsByType[EventTypeAuthSignIn])
}

func TestMemoryStoreExportFormats(t *testing.T) {
	ctx := context.Background()
	s := seedStore(
		event("1", time.Minute, nil),
		event("2", 2*time.Minute, nil),
	)

	jsonOut, err := s.Export(ctx, SearchFilter{}, ExportFormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(jsonOut)), "["))

	ndjsonOut, err := s.Export(ctx, SearchFilter{}, ExportFormatNDJSON)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(ndjsonOut)), "\n"), 2)

	csvOut, err := s.Export(ctx, SearchFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvOut)), "\n")
	require.Len(t, lines, 3, "header plus two records")
	assert.True(t, strings.HasPrefix(lines[0], "id,timestamp,event_type"))
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	s := seedStore(
		event("old", 100*24*time.Hour, nil),
		event("fresh", time.Minute, nil),
	)

	removed, err := s.Cleanup(ctx, RetentionPolicy{RetentionDays: 90})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := s.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].ID)
}
