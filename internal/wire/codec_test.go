package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rickgao/roomsync/internal/clock"
)

func TestDecode_Variants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Type
	}{
		{"auth ack", `{"type":"auth-ack"}`, TypeAuthAck},
		{"auth err", `{"type":"auth-err","args":{}}`, TypeAuthErr},
		{"join ack", `{"type":"join-ack","args":{}}`, TypeJoinAck},
		{"join err", `{"type":"join-err","args":{"reason":"full"}}`, TypeJoinErr},
		{"stale", `{"type":"stale-state-err","args":{}}`, TypeStaleStateErr},
		{"state", `{"type":"state","args":{"path":["session","title"],"op":"set","value":"x"},"timestamp":[1700000000000,3]}`, TypeState},
		{"control", `{"type":"control-video","args":{"state":"playing","time":10}}`, TypeControlVideo},
		{"unknown", `{"type":"chat","args":{"text":"hi"}}`, Type("chat")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if in.Type != tt.want {
				t.Errorf("Type = %q, want %q", in.Type, tt.want)
			}
			if in.Message.MessageType() != tt.want {
				t.Errorf("MessageType = %q, want %q", in.Message.MessageType(), tt.want)
			}
		})
	}
}

func TestDecode_Timestamp(t *testing.T) {
	in, err := Decode([]byte(`{"type":"state","args":{"path":["a"],"op":"unset"},"timestamp":[1700000000000,3]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Timestamp == nil {
		t.Fatal("Timestamp is nil")
	}
	want := clock.Timestamp{Millis: 1700000000000, Seq: 3}
	if *in.Timestamp != want {
		t.Errorf("Timestamp = %v, want %v", *in.Timestamp, want)
	}

	sc, ok := in.Message.(StateChange)
	if !ok {
		t.Fatalf("Message is %T, want StateChange", in.Message)
	}
	if len(sc.Args) == 0 {
		t.Error("StateChange.Args is empty")
	}
}

func TestDecode_Control(t *testing.T) {
	in, err := Decode([]byte(`{"type":"control-video","args":{"state":"paused","time":42.5,"localBegin":1000}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	c, ok := in.Message.(Control)
	if !ok {
		t.Fatalf("Message is %T, want Control", in.Message)
	}
	if c.Playback.Playing() {
		t.Error("Playing() = true for paused control")
	}
	if c.Playback.Time != 42.5 || c.Playback.LocalBegin != 1000 {
		t.Errorf("Playback = %+v", c.Playback)
	}
	if c.Playback.Muted != nil {
		t.Error("Muted should be nil")
	}

	in, err = Decode([]byte(`{"type":"control-video","args":{"muted":true}}`))
	if err != nil {
		t.Fatalf("Decode mute failed: %v", err)
	}
	c = in.Message.(Control)
	if c.Playback.Muted == nil || !*c.Playback.Muted {
		t.Errorf("Muted = %v, want true", c.Playback.Muted)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"not json", `{{`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"no type", `{"args":{}}`, ErrMissingType},
		{"state without args", `{"type":"state"}`, ErrMalformed},
		{"state null args", `{"type":"state","args":null}`, ErrMalformed},
		{"control bad state", `{"type":"control-video","args":{"state":"rewinding","time":1}}`, ErrMalformed},
		{"control bad args", `{"type":"control-video","args":"play"}`, ErrMalformed},
		{"bad timestamp", `{"type":"auth-ack","timestamp":[1]}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestType_IsError(t *testing.T) {
	for _, typ := range []Type{TypeAuthErr, TypeJoinErr, TypeStaleStateErr, "custom-err"} {
		if !typ.IsError() {
			t.Errorf("%q.IsError() = false", typ)
		}
	}
	for _, typ := range []Type{TypeAuthAck, TypeState, "errand"} {
		if typ.IsError() {
			t.Errorf("%q.IsError() = true", typ)
		}
	}
}

func TestType_IsHandshake(t *testing.T) {
	for _, typ := range []Type{TypeAuthAck, TypeAuthErr, TypeJoinAck, TypeJoinErr, TypeStaleStateErr} {
		if !typ.IsHandshake() {
			t.Errorf("%q.IsHandshake() = false", typ)
		}
	}
	for _, typ := range []Type{TypeState, TypeControlVideo, "custom-err"} {
		if typ.IsHandshake() {
			t.Errorf("%q.IsHandshake() = true", typ)
		}
	}
}

func TestEncode(t *testing.T) {
	ts := clock.Timestamp{Millis: 5, Seq: 1}
	at := 12.5

	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"auth", Auth{Key: "k", ID: "u1"}, `{"type":"auth","args":{"key":"k","id":"u1"}}`},
		{"join fresh", Join{ID: "s1"}, `{"type":"join","args":{"id":"s1"}}`},
		{"join resume", Join{ID: "s1", Timestamp: &ts}, `{"type":"join","args":{"id":"s1","timestamp":[5,1]}}`},
		{"pause", VideoCommand{Action: ActionPause}, `{"type":"control-video","args":{"action":"pause"}}`},
		{"play", VideoCommand{Action: ActionPlay, Time: &at}, `{"type":"control-video","args":{"action":"play","time":12.5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !jsonEqual(t, data, []byte(tt.want)) {
				t.Errorf("Encode = %s, want %s", data, tt.want)
			}
		})
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var x, y any
	if err := json.Unmarshal(a, &x); err != nil {
		t.Fatalf("unmarshal %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &y); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	xs, _ := json.Marshal(x)
	ys, _ := json.Marshal(y)
	return string(xs) == string(ys)
}
