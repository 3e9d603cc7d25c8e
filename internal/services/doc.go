// Package services defines shared utilities consumed by the pipeline stages
// and the queue coordinator.
//
// Key responsibilities:
//   - Context helpers that stamp family identifiers, stage names, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that separate run-fatal
//     failures (configuration, missing input) from per-family problems.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
