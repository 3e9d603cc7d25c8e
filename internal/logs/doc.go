// Package logs tails famforge run logs and the scheduler logs of running
// families for `famforge logs`.
//
// Tail streams files with bounded memory, supports negative offsets for
// "last N lines" reads, and waits for new lines in follow mode using fsnotify
// with a polling fallback. Callers supply context deadlines so follow loops
// shut down cleanly when the CLI exits.
package logs
