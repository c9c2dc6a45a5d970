package connection

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rickgao/roomsync/internal/clock"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no ping)")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrNotJoined          = errors.New("not joined")
	ErrReconnectActive    = errors.New("connection is live; reconnect not allowed")
	ErrNotStarted         = errors.New("manager not started")
	ErrUnexpectedMessage  = errors.New("message not valid in current state")
	ErrMissingCredentials = errors.New("missing socket credentials")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// -----------------------------------------------------------------------------
// Connection State
// -----------------------------------------------------------------------------

// State is the handshake state of the relay connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateJoining
	StateJoined
	StateAuthError
	StateJoinError
	StateStaleStateError
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateJoining:
		return "JOINING"
	case StateJoined:
		return "JOINED"
	case StateAuthError:
		return "AUTH-ERROR"
	case StateJoinError:
		return "JOIN-ERROR"
	case StateStaleStateError:
		return "STALE-STATE-ERROR"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the state only changes on manual reconnection.
func (s State) Terminal() bool {
	return s == StateAuthError || s == StateJoinError || s == StateStaleStateError
}

// Reconnectable reports whether Reconnect is allowed from s.
func (s State) Reconnectable() bool {
	return s == StateClosed || s.Terminal()
}

// RecoveryReason says why dependents must resynchronize.
type RecoveryReason int

const (
	// RecoveryBackUp follows a successful liveness check after a close.
	RecoveryBackUp RecoveryReason = iota
	// RecoveryStaleState follows stale-state-err; local state must be rebuilt.
	RecoveryStaleState
)

// String returns the reason name.
func (r RecoveryReason) String() string {
	switch r {
	case RecoveryBackUp:
		return "back-up"
	case RecoveryStaleState:
		return "stale-state"
	default:
		return "unknown"
	}
}

// Recovery is the signal that the relay can be rejoined.
type Recovery struct {
	Reason RecoveryReason
}

// -----------------------------------------------------------------------------
// Collaborators
// -----------------------------------------------------------------------------

// StateHandler consumes the args of state messages.
type StateHandler interface {
	Handle(args json.RawMessage)
}

// Supervisor watches for the relay to come back after a close.
type Supervisor interface {
	Start()
	Stop()
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://example.org/sock)
	Header           http.Header   // Extra handshake headers (e.g., Origin)
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // Interval between keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client ClientConfig

	Key    string // Socket key sent in auth
	UserID string // Participant id sent in auth
	RoomID string // Room id sent in join

	// InitialTimestamp seeds the resume point of the first join, typically
	// the timestamp of a state snapshot fetched out of band.
	InitialTimestamp *clock.Timestamp
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client: DefaultClientConfig(),
	}
}
