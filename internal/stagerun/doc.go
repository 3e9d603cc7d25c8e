// Package stagerun owns the retry policy of one asynchronous stage
// (lift-over or profile build) for one family.
//
// Run is a single, non-blocking pass: it checks the stage's success
// artifact, then the stage log, and returns a Verdict. Pending means the
// external job is still running and the caller should re-check later. A
// failure with attempts left clears scratch files, relaunches the external
// command, and reports RetryableFailure; the caller persists the returned
// attempt count. Memory-limit failures are always fatal.
package stagerun
