package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store provides methods for querying and managing audit logs
type Store interface {
	// Search searches audit logs based on filters
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)

	// Get retrieves a specific audit event by ID
	Get(ctx context.Context, id string) (*AuditEvent, error)

	// GetStats retrieves audit log statistics
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error)

	// Export exports audit logs in the specified format
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)

	// Cleanup removes audit logs older than the retention period
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// MemoryStore is an in-process, append-only Store backed by a slice.
// Events enter it only through Record; no Logger in this package calls
// Record itself.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*AuditEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an event to the store.
func (s *MemoryStore) Record(event *AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *MemoryStore) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*AuditEvent, 0, len(s.events))
	for _, e := range s.events {
		if !matchesFilter(e, filter) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	if filter.Offset > 0 && filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else if filter.Offset >= len(matched) {
		matched = nil
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

func matchesFilter(e *AuditEvent, filter SearchFilter) bool {
	if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && e.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
		return false
	}
	if filter.Username != "" && e.Username != filter.Username {
		return false
	}
	if len(filter.EventTypes) > 0 {
		found := false
		for _, t := range filter.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Status != nil && e.Status != *filter.Status {
		return false
	}
	if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
		return false
	}
	return true
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &AuditStats{
		EventsByType:     make(map[EventType]int64),
		EventsByStatus:   make(map[EventStatus]int64),
		EventsByUser:     make(map[string]int64),
		EventsByResource: make(map[ResourceType]int64),
	}
	uniqueUsers := make(map[string]struct{})
	uniqueIPs := make(map[string]struct{})

	for _, e := range s.events {
		if startTime != nil && e.Timestamp.Before(*startTime) {
			continue
		}
		if endTime != nil && e.Timestamp.After(*endTime) {
			continue
		}
		stats.TotalEvents++
		stats.EventsByType[e.EventType]++
		stats.EventsByStatus[e.Status]++
		if e.ResourceType != "" {
			stats.EventsByResource[e.ResourceType]++
		}
		if e.UserID != nil {
			stats.EventsByUser[*e.UserID]++
			uniqueUsers[*e.UserID] = struct{}{}
		}
		if e.IPAddress != "" {
			uniqueIPs[e.IPAddress] = struct{}{}
		}
		if e.EventType == EventTypeAuthSignInFailed {
			stats.FailedAuthAttempts++
		}
		if e.Status == EventStatusDenied {
			stats.AccessDenials++
		}
	}

	stats.UniqueUsers = int64(len(uniqueUsers))
	stats.UniqueIPs = int64(len(uniqueIPs))
	return stats, nil
}

func (s *MemoryStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	events, err := s.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatCSV:
		return exportCSV(events)
	case ExportFormatNDJSON:
		return exportNDJSON(events)
	default:
		return exportJSON(events)
	}
}

func (s *MemoryStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}
