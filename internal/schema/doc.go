// Package schema classifies platform entity types for the activity pipeline.
//
// The pipeline only records automatic reads for:
//   - STIX core objects (domain objects and cyber observables)
//   - STIX core relationships
//   - a short whitelist of internal objects (workspaces)
//
// Abstract types are not listed; callers always report the concrete type.
package schema
