// Package coordinator drains the shared work lists.
//
// Two loops run side by side under one errgroup: DrainLiftover polls
// families whose lift-over job is running and hands finished ones to the
// build list, and DrainBuild polls profile builds until both lists are empty.
// Pending families are requeued with a backoff delay instead of blocking the
// loop, and an fsnotify waker pulls a family's next check forward when its
// directory changes. A flock in the state directory keeps a second drain
// from running against the same store.
package coordinator
