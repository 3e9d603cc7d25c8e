// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// the [notifications] section and degrades to a no-op when no topic is set.
// Run start and completion summaries are gated by notifications.run; run
// aborts and failed families by notifications.errors.
package notifications
