// Package connection implements the relay Connection Manager.
//
// The Connection Manager:
//   - Owns one WebSocket connection to the relay
//   - Runs the auth/join handshake state machine
//   - Routes state messages to the applier and control-video to subscribers
//   - Tracks the last-seen timestamp so a rejoin resumes where it left off
//   - Hands off to a Supervisor when the socket closes
//
// Every Manager method runs on the event loop (see package loop). Socket
// reads happen on a pump goroutine that posts each frame to the loop in
// delivery order.
package connection
