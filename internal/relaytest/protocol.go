package relaytest

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rickgao/roomsync/internal/clock"
	"github.com/rickgao/roomsync/internal/wire"
)

func encodeFrame(typ wire.Type, args any, ts *clock.Timestamp) ([]byte, error) {
	var raw json.RawMessage
	switch a := args.(type) {
	case nil:
	case json.RawMessage:
		raw = a
	case []byte:
		raw = a
	default:
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal %s args: %w", typ, err)
		}
		raw = b
	}
	return json.Marshal(wire.Envelope{Type: typ, Args: raw, Timestamp: ts})
}

// send queues a frame for the socket's writer.
func (s *socket) send(frame []byte) bool {
	return s.out.push(frame)
}

// sendLocked queues a stamped reply for one socket.
func (r *Relay) sendLocked(s *socket, typ wire.Type, args any) {
	ts := r.clock.Next()
	frame, err := encodeFrame(typ, args, &ts)
	if err != nil {
		r.logger.Warn("encode reply failed", "type", typ, "error", err)
		return
	}
	if !s.send(frame) {
		r.logger.Debug("reply dropped, socket closing", "socket", s.id)
	}
}

func (r *Relay) handleFrame(s *socket, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		r.logger.Warn("malformed frame", "socket", s.id)
		return
	}
	r.inbound = append(r.inbound, env)

	switch env.Type {
	case wire.TypeAuth:
		r.authLocked(s, env.Args)
	case wire.TypeJoin:
		r.joinLocked(s, env.Args)
	case wire.TypeControlVideo:
		r.controlLocked(s, env.Args)
	default:
		r.sendLocked(s, env.Type+"-err", map[string]string{"error": "unsupported message"})
	}
}

func (r *Relay) authLocked(s *socket, args json.RawMessage) {
	var a wire.Auth
	if err := json.Unmarshal(args, &a); err != nil || a.ID == "" || a.Key == "" {
		r.sendLocked(s, wire.TypeAuthErr, "Invalid auth")
		return
	}
	if want, ok := r.keys[a.ID]; len(r.keys) > 0 && (!ok || want != a.Key) {
		r.sendLocked(s, wire.TypeAuthErr, "Invalid key")
		return
	}
	s.userID = a.ID
	s.authed = true
	r.sendLocked(s, wire.TypeAuthAck, nil)
}

func (r *Relay) joinLocked(s *socket, args json.RawMessage) {
	if !s.authed {
		r.sendLocked(s, wire.TypeJoinErr, "Not authenticated")
		return
	}
	var j wire.Join
	if err := json.Unmarshal(args, &j); err != nil {
		r.sendLocked(s, wire.TypeJoinErr, "Invalid join")
		return
	}
	rm, ok := r.rooms[j.ID]
	if !ok {
		r.sendLocked(s, wire.TypeJoinErr, "Unknown room: "+j.ID)
		return
	}
	if j.Timestamp != nil && j.Timestamp.Millis <= r.now().Add(-r.logAge).UnixMilli() {
		r.sendLocked(s, wire.TypeStaleStateErr, nil)
		return
	}

	if s.room != nil && s.room != rm {
		delete(s.room.members, s.id)
	}
	s.room = rm
	rm.members[s.id] = s
	r.sendLocked(s, wire.TypeJoinAck, nil)

	// Catch up on broadcasts after the resume point.
	if j.Timestamp != nil {
		last := *j.Timestamp
		i := sort.Search(len(rm.log), func(i int) bool { return last.Before(rm.log[i].ts) })
		for _, e := range rm.log[i:] {
			if !s.send(e.frame) {
				return
			}
		}
	}

	if rm.ctrl != nil {
		r.sendLocked(s, wire.TypeControlVideo, r.currentLocked(rm))
	}
}

// currentLocked returns the room's control as of now, for a late joiner.
func (r *Relay) currentLocked(rm *room) wire.PlaybackControl {
	c := wire.PlaybackControl{State: rm.ctrl.State, Time: rm.ctrl.Time}
	if c.Playing() {
		c.Time += float64(r.now().UnixMilli()-rm.ctrl.LocalBegin) / 1000
	}
	return c
}

// controlLocked turns a video command into an authoritative control and
// broadcasts it to the room.
func (r *Relay) controlLocked(s *socket, args json.RawMessage) {
	rm := s.room
	if rm == nil {
		r.sendLocked(s, wire.TypeControlVideo+"-err", "Not joined")
		return
	}
	var cmd wire.VideoCommand
	if err := json.Unmarshal(args, &cmd); err != nil {
		r.sendLocked(s, wire.TypeControlVideo+"-err", "Invalid control")
		return
	}

	var out wire.PlaybackControl
	switch cmd.Action {
	case wire.ActionPlay:
		t := 0.0
		if cmd.Time != nil {
			t = *cmd.Time
		}
		out = wire.PlaybackControl{State: wire.StatePlaying, Time: t}
		rm.ctrl = &wire.PlaybackControl{State: wire.StatePlaying, Time: t, LocalBegin: r.now().UnixMilli()}
	case wire.ActionPause:
		t := 0.0
		if rm.ctrl != nil {
			t = r.currentLocked(rm).Time
		}
		out = wire.PlaybackControl{State: wire.StatePaused, Time: t}
		rm.ctrl = &out
	case wire.ActionMute, wire.ActionUnmute:
		rm.muted = cmd.Action == wire.ActionMute
		muted := rm.muted
		out = wire.PlaybackControl{Muted: &muted}
	default:
		r.sendLocked(s, wire.TypeControlVideo+"-err", "Unknown action")
		return
	}

	ts := r.clock.Next()
	frame, err := encodeFrame(wire.TypeControlVideo, out, &ts)
	if err != nil {
		r.logger.Warn("encode control failed", "error", err)
		return
	}
	r.broadcastLocked(rm, frame)
}
