package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// exportJSON renders events as a single JSON array.
func exportJSON(events []*AuditEvent) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

// exportNDJSON renders events as newline-delimited JSON, one event per
// line, the format log shippers ingest directly.
func exportNDJSON(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, e := range events {
		if err := encoder.Encode(e); err != nil {
			return nil, fmt.Errorf("audit: encode event: %w", err)
		}
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{
	"id", "timestamp", "event_type", "status", "user_id", "username",
	"resource_type", "resource_id", "ip_address", "method", "path",
	"status_code", "message", "error_message",
}

// exportCSV renders events as CSV with a fixed header row.
func exportCSV(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, e := range events {
		userID := ""
		if e.UserID != nil {
			userID = *e.UserID
		}
		record := []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339),
			string(e.EventType),
			string(e.Status),
			userID,
			e.Username,
			string(e.ResourceType),
			e.ResourceID,
			e.IPAddress,
			e.Method,
			e.Path,
			strconv.Itoa(e.StatusCode),
			e.Message,
			e.ErrorMessage,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
