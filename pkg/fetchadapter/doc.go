// Package fetchadapter is the single entry point of the emulator: it
// classifies each request by host and path prefix and dispatches to
// the auth, data, or storage router, or to the injected passthrough
// for everything the emulator does not intercept.
//
// A request whose host differs from the configured one is never
// touched. Storage routes also pass through when no blob backend is
// configured. Any panic escaping a route becomes a 500 with an
// internal_error body rather than killing the process.
package fetchadapter
