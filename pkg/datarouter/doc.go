// Package datarouter serves /rest/v1/* requests: it binds the
// caller's identity onto the engine connection, translates the
// PostgREST request vocabulary into parameterized SQL, conjoins any
// registered row-level-security predicates, executes, and shapes the
// response per the request's Prefer header.
//
// Every request runs as one unit through the pooler (when one is
// configured) so the bind-then-execute sequence never interleaves with
// another caller's; without a pooler the router calls the engine
// directly and relies on the process serializing requests itself.
package datarouter
