// Package loop provides the single event loop that serializes all sync logic.
//
// Socket reads, HTTP checks and timer firings happen on their own
// goroutines and hand results to the loop with Post. Delayed work is
// scheduled with AfterFunc and returns a cancellable *Task; a cancelled
// task never runs, even when its timer has already fired.
//
// Manual is a virtual-time Scheduler for deterministic tests.
package loop
