// Package preflight verifies that a run can start: the required external
// files exist, the working directories are accessible, and every configured
// tool resolves on PATH.
//
// The run and build commands call Verify before claiming any family so a
// broken environment fails fast instead of after hours of queued jobs. The
// deps command renders the individual results.
package preflight
