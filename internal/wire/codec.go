package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses one inbound frame.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Inbound{}, ErrMissingType
	}

	in := Inbound{
		Type:      env.Type,
		Args:      env.Args,
		Timestamp: env.Timestamp,
	}

	switch env.Type {
	case TypeAuthAck:
		in.Message = AuthAck{}
	case TypeAuthErr:
		in.Message = AuthErr{Reason: env.Args}
	case TypeJoinAck:
		in.Message = JoinAck{}
	case TypeJoinErr:
		in.Message = JoinErr{Reason: env.Args}
	case TypeStaleStateErr:
		in.Message = StaleStateErr{}
	case TypeState:
		if isNull(env.Args) {
			return Inbound{}, fmt.Errorf("%w: state without args", ErrMalformed)
		}
		in.Message = StateChange{Args: env.Args}
	case TypeControlVideo:
		var pc PlaybackControl
		if err := json.Unmarshal(env.Args, &pc); err != nil {
			return Inbound{}, fmt.Errorf("%w: control-video: %v", ErrMalformed, err)
		}
		if pc.Muted == nil && pc.State != StatePlaying && pc.State != StatePaused {
			return Inbound{}, fmt.Errorf("%w: control-video state %q", ErrMalformed, pc.State)
		}
		in.Message = Control{Playback: pc}
	default:
		in.Message = Unknown{Type: env.Type, Args: env.Args}
	}

	return in, nil
}

// Encode builds the frame for an outbound command.
func Encode(cmd Command) ([]byte, error) {
	args, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", cmd.CommandType(), err)
	}
	return json.Marshal(Envelope{Type: cmd.CommandType(), Args: args})
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
