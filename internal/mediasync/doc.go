// Package mediasync keeps a local media player in step with the playback
// state broadcast through the relay.
//
// The relay sends a control whenever someone with group control plays,
// pauses, seeks or mutes. Between controls the Coordinator extrapolates the
// shared position from the time the control arrived:
//
//	estimated = control.Time + (now - control.LocalBegin) / 1000
//
// and only seeks the player when it has drifted further than the tolerance,
// so ordinary network jitter never causes visible jumps.
//
// All Coordinator methods must be called on the loop that was passed to New.
package mediasync
