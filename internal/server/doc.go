// Package server provides the HTTP status surface of jellysync: routing, middleware, and the
// job, health and metrics handlers.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("GET /jobs/{name}").
//
// # Endpoints
//
//	GET  /jobs             → status of every registered job
//	GET  /jobs/{name}      → status of one job, 404 if unknown
//	POST /jobs/{name}/run  → trigger a run (202), ?wait=true for the summary, ?stream=true for SSE progress
//	GET  /healthz          → 200 when the database answers, 503 otherwise
//	GET  /metrics          → Prometheus exposition
//
// A triggered run goes through the same lock as scheduled runs, so triggering a job that is
// already running reports a skipped run rather than starting a second one.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
