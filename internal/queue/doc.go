// Package queue serializes file handling: paths are accepted in arrival order
// and handed one at a time to a single worker.
//
// Enqueue never blocks and the pending list is unbounded. The worker always
// moves on to the next entry after a handler returns, whatever happened to
// the previous file, so one bad file cannot stall the rest. A path that is
// already pending or in flight is not queued twice.
//
// Each Queue owns its state; there are no package-level singletons, so tests
// and tools can run several pipelines side by side.
package queue
