// Package services defines shared utilities consumed by the ingestion pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp the file being processed, the pipeline stage,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures keep a
//     consistent "stage: operation: message: cause" shape.
//
// Use these helpers when wiring new pipeline code so operational behaviour
// (error handling, observability) stays uniform across components.
package services
