// Package daemon coordinates the long-running watch process.
//
// It wires the folder watcher, the ingest controller and the optional status
// API into a single lifecycle guarded by a flock-based lock, so only one
// process ever drives the remote account. Shutdown cancels the watcher and
// the queue worker together; a file in flight is abandoned and picked up by
// the startup scan of the next run.
//
// Keep orchestration here: per-file behaviour lives in ingest and its
// collaborators.
package daemon
