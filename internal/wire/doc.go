// Package wire defines the relay message contract.
//
// Every frame is a JSON object {type, args, timestamp?}. Inbound frames
// decode into a closed set of Message variants; any type this package does
// not know decodes to Unknown so generic subscribers still see it.
// Timestamps are [millis, seq] pairs (see package clock).
package wire
