// Package history journals every reported upload outcome in SQLite.
//
// The journal is append-only bookkeeping for operators: `hopper history` and
// the status API read it, nothing in the pipeline depends on it. A write
// failure is logged by the caller and never changes a file's outcome.
//
// Schema changes bump schemaVersion in schema.go; users delete the database to
// adopt the new schema.
package history
