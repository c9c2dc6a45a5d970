// Package session assembles a sync client for one room.
//
// A Session owns a single event loop and wires onto it:
//
//	connection.Manager      relay socket, handshake and resume point
//	applier.Applier         state messages -> registered root trees
//	reconnect.Supervisor    origin liveness checks after a close
//	mediasync.Coordinator   shared playback, fed by control-video
//
// Recovery follows the reason the manager reports. After the relay comes
// back up the session rejoins from the last seen timestamp and the relay
// replays what was missed. After stale-state-err the local trees cannot be
// caught up, so they are rebuilt: from a fresh origin snapshot when one is
// configured, otherwise from the trees the session started with.
//
// Everything except Run and the query helpers runs on the loop.
package session
