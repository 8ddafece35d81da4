// Package webhooks provides an in-process publish/subscribe broadcaster and
// the HMAC signing helpers used for Storage signed URLs.
//
// # Overview
//
// Broadcaster[T] fans an event out to every subscriber on its own goroutine,
// recovering from subscriber panics so one bad callback can't take down a
// publish. It backs the Auth subsystem's on_auth_state_change notifications
// and Storage's bucket/object lifecycle events.
//
// # Usage Example
//
//	b := webhooks.NewBroadcaster[auth.Session]()
//	sub := b.Subscribe(func(event string, session auth.Session) {
//		log.Printf("auth event %s for %s", event, session.UserID)
//	})
//	defer b.Unsubscribe(sub)
//	b.Publish("SIGNED_IN", session)
//
// # Related Packages
//
//   - pkg/async: panic-recovering goroutine launch
//   - pkg/storagehandler: signed URL generation using MAC/VerifyMAC
package webhooks
