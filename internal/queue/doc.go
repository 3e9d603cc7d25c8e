// Package queue persists the named work lists that hand families between
// the lift-over and build drain loops.
//
// Three lists exist: lift_over_in (families whose lift-over job is running),
// lift_over_done (families whose build job is running), and pfam_in (the
// family a build worker currently holds). Each list is a FIFO of family
// identifiers stored in SQLite. PopReady removes the head entry whose
// not_before time has passed in one statement, so concurrent workers in this
// or other processes never receive the same entry twice. Requeue pushes a
// family back to the tail with a delay, which is how pending stages are
// re-checked with backoff instead of a fixed sleep.
//
// The database is transient storage for in-flight work. Schema changes bump
// schemaVersion; users clear the database to adopt the new schema.
package queue
