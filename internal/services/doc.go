// Package services defines shared helpers consumed by the pipeline, the tool
// runner and the archive layer.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, operation names, items and stages
//     for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     run-fatal (missing tool, bad options, permissions) or item-scoped
//     (timeouts, incompatible input, output validation).
//
// Use these helpers when wiring new operations so failure handling stays
// uniform across the pipeline.
package services
