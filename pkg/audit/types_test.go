package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEvent_ToJSON(t *testing.T) {
	userID := "11111111-1111-1111-1111-111111111111"
	event := &AuditEvent{
		ID:           "evt-1",
		Timestamp:    time.Now().UTC(),
		EventType:    EventTypeAuthSignIn,
		Status:       EventStatusSuccess,
		UserID:       &userID,
		Username:     "a@b.c",
		ResourceType: ResourceTypeUser,
		ResourceID:   userID,
		IPAddress:    "192.168.1.1",
		Message:      "User signed in successfully",
		Metadata: map[string]interface{}{
			"key1": "value1",
			"key2": 123,
		},
	}

	jsonData, err := event.ToJSON()
	require.NoError(t, err)
	assert.NotEmpty(t, jsonData)

	// Verify we can parse it back
	parsed, err := FromJSON(jsonData)
	require.NoError(t, err)
	assert.Equal(t, event.ID, parsed.ID)
	assert.Equal(t, event.EventType, parsed.EventType)
	assert.Equal(t, event.Status, parsed.Status)
	assert.Equal(t, event.Username, parsed.Username)
}

func TestEventType_Constants(t *testing.T) {
	// Test that event type constants are properly defined
	assert.Equal(t, EventType("auth.sign_in"), EventTypeAuthSignIn)
	assert.Equal(t, EventType("auth.sign_out"), EventTypeAuthSignOut)
	assert.Equal(t, EventType("auth.token_refresh"), EventTypeAuthTokenRefresh)
	assert.Equal(t, EventType("rls.denied"), EventTypeRLSDenied)
	assert.Equal(t, EventType("storage.object_upload"), EventTypeStorageObjectUpload)
}

func TestEventStatus_Constants(t *testing.T) {
	assert.Equal(t, EventStatus("success"), EventStatusSuccess)
	assert.Equal(t, EventStatus("failure"), EventStatusFailure)
	assert.Equal(t, EventStatus("denied"), EventStatusDenied)
}

func TestResourceType_Constants(t *testing.T) {
	assert.Equal(t, ResourceType("user"), ResourceTypeUser)
	assert.Equal(t, ResourceType("session"), ResourceTypeSession)
	assert.Equal(t, ResourceType("bucket"), ResourceTypeBucket)
	assert.Equal(t, ResourceType("object"), ResourceTypeObject)
}

func TestChangeDetails_JSON(t *testing.T) {
	changes := &ChangeDetails{
		Before: map[string]interface{}{
			"name":  "old-name",
			"value": 100,
		},
		After: map[string]interface{}{
			"name":  "new-name",
			"value": 200,
		},
	}

	jsonData, err := json.Marshal(changes)
	require.NoError(t, err)

	var parsed ChangeDetails
	err = json.Unmarshal(jsonData, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "old-name", parsed.Before["name"])
	assert.Equal(t, "new-name", parsed.After["name"])
}

func TestDefaultRetentionPolicy(t *testing.T) {
	policy := DefaultRetentionPolicy()

	assert.Equal(t, 90, policy.RetentionDays)
	assert.True(t, policy.ArchiveEnabled)
	assert.Equal(t, "/var/basestub/audit-archive", policy.ArchivePath)
	assert.True(t, policy.CompressArchive)
}

func TestSearchFilter_Defaults(t *testing.T) {
	filter := SearchFilter{}

	assert.Nil(t, filter.StartTime)
	assert.Nil(t, filter.EndTime)
	assert.Nil(t, filter.UserID)
	assert.Equal(t, "", filter.Username)
	assert.Equal(t, 0, filter.Limit)
	assert.Equal(t, 0, filter.Offset)
}

func TestExportFormat_Constants(t *testing.T) {
	assert.Equal(t, ExportFormat("json"), ExportFormatJSON)
	assert.Equal(t, ExportFormat("csv"), ExportFormatCSV)
	assert.Equal(t, ExportFormat("ndjson"), ExportFormatNDJSON)
}
