// Package api defines the HTTP status surface of the watch daemon.
//
// Types in this package are transport DTOs with camelCase JSON tags and
// RFC3339 millisecond timestamps. Converters translate ingest and history
// models into them so consumers never depend on internal types.
//
// Routes (gin):
//
//	GET /api/status           daemon, queue and pipeline state
//	GET /api/history?limit=N  most recent journaled outcomes, newest first
//
// Client is the matching HTTP client used by the CLI.
package api
