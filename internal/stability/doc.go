// Package stability decides when a file has finished being written.
//
// A recording is considered stable once its size has been observed unchanged
// for a configured number of consecutive polls. Deleted paths, persistent
// permission failures, and files that never settle inside the timeout are
// reported as distinct errors so the caller can fail the file without
// disturbing the rest of the pipeline.
package stability
