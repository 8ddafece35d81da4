// Package pooler serializes database work through the engine's single
// pinned connection while letting many requests wait concurrently.
//
// Identity claims are connection-scoped, so two requests sharing the
// connection would race on claim binding and leak one caller's
// identity into another's query. The pooler prevents that by running
// exactly one submitted operation at a time; an operation holds the
// connection exclusively from the moment it is dequeued until its
// function returns, so a "bind identity, then query" sequence is
// atomic with respect to every other request.
//
// Waiting operations are ordered by a four-level priority. To keep a
// burst of high-priority traffic from starving the rest, any operation
// that has waited longer than the aging threshold is considered one
// level more urgent each time the dispatcher picks its next item.
package pooler
