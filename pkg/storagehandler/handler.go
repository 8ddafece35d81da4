package storagehandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/basestub/basestub/pkg/sqlengine"
	"github.com/basestub/basestub/pkg/storageblob"
	"github.com/basestub/basestub/pkg/webhooks"
)

var tracer = otel.Tracer("github.com/basestub/basestub/pkg/storagehandler")

// KeySource yields the HMAC key signed URLs are minted with. Satisfied
// by *auth.Store.
type KeySource interface {
	SigningKey(ctx context.Context) ([]byte, error)
}

// Handler owns bucket and object operations over one engine and one
// blob backend.
type Handler struct {
	engine      *sqlengine.Engine
	blobs       storageblob.Backend
	keys        KeySource
	broadcaster *webhooks.Broadcaster[Event]
}

// New builds a Handler. keys may be nil if signed URLs are never used.
func New(engine *sqlengine.Engine, blobs storageblob.Backend, keys KeySource) *Handler {
	return &Handler{
		engine:      engine,
		blobs:       blobs,
		keys:        keys,
		broadcaster: webhooks.NewBroadcaster[Event](),
	}
}

// OnStorageEvent registers a listener for bucket/object lifecycle
// events.
func (h *Handler) OnStorageEvent(cb webhooks.Callback[Event]) webhooks.Subscription {
	return h.broadcaster.Subscribe(cb)
}

// Unsubscribe removes a previously registered listener.
func (h *Handler) Unsubscribe(sub webhooks.Subscription) {
	h.broadcaster.Unsubscribe(sub)
}

func (h *Handler) publish(event Event) {
	h.broadcaster.Publish(string(event.Type), event)
}

// row-scan helpers shared by buckets.go and objects.go. The engine
// returns loosely typed map rows; TIMESTAMP values may arrive as
// time.Time or string depending on how they were bound.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

func marshalJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("storage: marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if json.Unmarshal([]byte(s), &m) != nil {
		return map[string]any{}
	}
	return m
}
