// Package clock implements the monotonic event-ordering primitive.
//
// A Timestamp is a (wall-clock milliseconds, sequence) pair:
//   - The sequence advances on every call and resets after a quiet period
//   - Ordering is lexicographic, so calls within one millisecond stay ordered
//   - Nothing is persisted; the reset gap covers restarts
//
// A backward step of the wall clock can produce a smaller timestamp. This
// is a known limitation and is not corrected here.
package clock
