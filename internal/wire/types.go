package wire

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rickgao/roomsync/internal/clock"
)

// Errors
var (
	ErrMalformed   = errors.New("malformed message")
	ErrMissingType = errors.New("message has no type")
)

// Type is the wire "type" string.
type Type string

const (
	TypeAuth          Type = "auth"
	TypeAuthAck       Type = "auth-ack"
	TypeAuthErr       Type = "auth-err"
	TypeJoin          Type = "join"
	TypeJoinAck       Type = "join-ack"
	TypeJoinErr       Type = "join-err"
	TypeState         Type = "state"
	TypeStaleStateErr Type = "stale-state-err"
	TypeControlVideo  Type = "control-video"
)

// IsError reports whether the type follows the "-err" convention.
func (t Type) IsError() bool {
	return strings.HasSuffix(string(t), "-err")
}

// IsHandshake reports whether t answers auth or join rather than carrying
// room history.
func (t Type) IsHandshake() bool {
	switch t {
	case TypeAuthAck, TypeAuthErr, TypeJoinAck, TypeJoinErr, TypeStaleStateErr:
		return true
	}
	return false
}

// Envelope is the frame shape shared by both directions.
type Envelope struct {
	Type      Type             `json:"type"`
	Args      json.RawMessage  `json:"args,omitempty"`
	Timestamp *clock.Timestamp `json:"timestamp,omitempty"`
}

// -----------------------------------------------------------------------------
// Inbound
// -----------------------------------------------------------------------------

// Message is one of the inbound variants below.
type Message interface {
	MessageType() Type
	isMessage()
}

// Inbound is a decoded frame plus its variant.
type Inbound struct {
	Type      Type
	Args      json.RawMessage
	Timestamp *clock.Timestamp
	Message   Message
}

// AuthAck confirms the auth command.
type AuthAck struct{}

// AuthErr rejects the auth command.
type AuthErr struct {
	Reason json.RawMessage
}

// JoinAck confirms the join command.
type JoinAck struct{}

// JoinErr rejects the join command.
type JoinErr struct {
	Reason json.RawMessage
}

// StateChange carries one operation against a shared model tree.
// Args is decoded by the applier.
type StateChange struct {
	Args json.RawMessage
}

// StaleStateErr means the join timestamp predates the relay's retained history.
type StaleStateErr struct{}

// Control carries the authoritative playback state.
type Control struct {
	Playback PlaybackControl
}

// Unknown is any type without a dedicated variant.
type Unknown struct {
	Type Type
	Args json.RawMessage
}

func (AuthAck) MessageType() Type       { return TypeAuthAck }
func (AuthErr) MessageType() Type       { return TypeAuthErr }
func (JoinAck) MessageType() Type       { return TypeJoinAck }
func (JoinErr) MessageType() Type       { return TypeJoinErr }
func (StateChange) MessageType() Type   { return TypeState }
func (StaleStateErr) MessageType() Type { return TypeStaleStateErr }
func (Control) MessageType() Type       { return TypeControlVideo }
func (u Unknown) MessageType() Type     { return u.Type }

func (AuthAck) isMessage()       {}
func (AuthErr) isMessage()       {}
func (JoinAck) isMessage()       {}
func (JoinErr) isMessage()       {}
func (StateChange) isMessage()   {}
func (StaleStateErr) isMessage() {}
func (Control) isMessage()       {}
func (Unknown) isMessage()       {}

// PlaybackState is "playing" or "paused".
type PlaybackState string

const (
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// PlaybackControl is the authoritative media state broadcast by the relay.
// A new control replaces the previous one entirely.
type PlaybackControl struct {
	State      PlaybackState `json:"state,omitempty"`
	Time       float64       `json:"time"`                 // Seconds into the media
	LocalBegin int64         `json:"localBegin,omitempty"` // Local epoch millis when received
	Muted      *bool         `json:"muted,omitempty"`      // Set only on mute/unmute controls
}

// Playing reports whether the control says the media is playing.
func (c PlaybackControl) Playing() bool {
	return c.State == StatePlaying
}

// -----------------------------------------------------------------------------
// Outbound
// -----------------------------------------------------------------------------

// Command is an outbound message.
type Command interface {
	CommandType() Type
}

// Auth identifies the client to the relay.
type Auth struct {
	Key string `json:"key"`
	ID  string `json:"id"`
}

// Join enters a room, optionally resuming after Timestamp.
type Join struct {
	ID        string           `json:"id"`
	Timestamp *clock.Timestamp `json:"timestamp,omitempty"`
}

// VideoAction is the action of a video command.
type VideoAction string

const (
	ActionPlay   VideoAction = "play"
	ActionPause  VideoAction = "pause"
	ActionMute   VideoAction = "mute"
	ActionUnmute VideoAction = "unmute"
)

// VideoCommand asks the relay to change the shared playback state.
type VideoCommand struct {
	Action VideoAction `json:"action"`
	Time   *float64    `json:"time,omitempty"`
}

func (Auth) CommandType() Type         { return TypeAuth }
func (Join) CommandType() Type         { return TypeJoin }
func (VideoCommand) CommandType() Type { return TypeControlVideo }
