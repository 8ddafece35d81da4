package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basestub/basestub/pkg/async"
)

// Subscription is an opaque handle returned by Subscribe, used to unsubscribe later.
type Subscription int64

// Callback receives an event name and its payload on its own goroutine.
type Callback[T any] func(event string, payload T)

// Broadcaster fans events out to every live subscriber. A panic in one
// callback is recovered and does not affect other subscribers or the
// publisher.
type Broadcaster[T any] struct {
	mu        sync.RWMutex
	nextID    int64
	listeners map[Subscription]Callback[T]
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{listeners: make(map[Subscription]Callback[T])}
}

// Subscribe registers cb and returns a handle for Unsubscribe.
func (b *Broadcaster[T]) Subscribe(cb Callback[T]) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := Subscription(atomic.AddInt64(&b.nextID, 1))
	b.listeners[id] = cb
	return id
}

// Unsubscribe removes a previously registered callback. No-op if unknown.
func (b *Broadcaster[T]) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, sub)
}

// callbackTimeout bounds how long a subscriber's delivery goroutine is
// given before its context is cancelled.
const callbackTimeout = 30 * time.Second

// Publish delivers event/payload to every current subscriber, each on its
// own goroutine, and returns once all have been launched (not completed).
// A callback that panics is recovered and logged by async.SafeGo and
// never affects other subscribers or the publisher.
func (b *Broadcaster[T]) Publish(event string, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, cb := range b.listeners {
		cb := cb
		async.SafeGoNoError(context.Background(), callbackTimeout, "broadcast "+event, func(ctx context.Context) {
			cb(event, payload)
		})
	}
}

// Count returns the number of live subscriptions, mostly useful for tests.
func (b *Broadcaster[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// MAC computes the raw HMAC-SHA256 of payload under key. Storage
// signed URLs carry this digest base64-encoded.
func MAC(payload, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// VerifyMAC reports whether digest matches MAC(payload, key) in
// constant time.
func VerifyMAC(payload, digest, key []byte) bool {
	return hmac.Equal(MAC(payload, key), digest)
}

// Sign computes the HMAC-SHA256 signature of payload under secret, formatted
// as "sha256=<hex>". Used for webhook-style header signatures.
func Sign(payload []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(MAC(payload, []byte(secret)))
}

// Verify reports whether signature matches Sign(payload, secret) in constant time.
func Verify(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
