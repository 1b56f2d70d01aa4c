// Package observability provides structured logging and metrics
// for the activity pipeline.
//
// This package implements:
//   - Process logger construction (zap, json or console)
//   - Request ID propagation into log fields
//   - The dedicated audit log sink
//   - Prometheus collectors for the pipeline stages
package observability
