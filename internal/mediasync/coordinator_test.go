package mediasync

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/rickgao/roomsync/internal/loop"
	"github.com/rickgao/roomsync/internal/wire"
)

// fakePlayer records every call made by the coordinator.
type fakePlayer struct {
	media     string
	playing   bool
	buffering bool
	pos       float64
	dur     float64
	muted   bool

	plays  int
	pauses int
	seeks  []float64
}

func (p *fakePlayer) MediaID() string   { return p.media }
func (p *fakePlayer) Playing() bool     { return p.playing }
func (p *fakePlayer) Buffering() bool   { return p.buffering }
func (p *fakePlayer) Position() float64 { return p.pos }
func (p *fakePlayer) Duration() float64 { return p.dur }
func (p *fakePlayer) Muted() bool       { return p.muted }
func (p *fakePlayer) Play()             { p.plays++; p.playing = true }
func (p *fakePlayer) Pause()            { p.pauses++; p.playing = false }
func (p *fakePlayer) SeekTo(s float64)  { p.seeks = append(p.seeks, s); p.pos = s }
func (p *fakePlayer) Mute()             { p.muted = true }
func (p *fakePlayer) Unmute()           { p.muted = false }

type recordingSender struct {
	sent []wire.VideoCommand
	err  error
}

func (s *recordingSender) Send(cmd wire.Command) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, cmd.(wire.VideoCommand))
	return nil
}

var epoch = time.Unix(1700000000, 0)

func newCoordinator(t *testing.T, groupControl bool) (*Coordinator, *loop.Manual, *recordingSender) {
	t.Helper()
	sched := loop.NewManual(epoch)
	sender := &recordingSender{}
	cfg := DefaultConfig()
	cfg.MediaID = "intro"
	cfg.GroupControl = groupControl
	return New(cfg, sched, sender, nil), sched, sender
}

func playing(t float64, begin time.Time) Control {
	return Control{State: wire.StatePlaying, Time: t, LocalBegin: begin.UnixMilli()}
}

func paused(t float64) Control {
	return Control{State: wire.StatePaused, Time: t}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 0.1
}

func TestCoordinator_Extrapolation(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)

	if _, ok := c.Estimated(); ok {
		t.Fatal("estimate before any control")
	}

	c.ReceiveControl(playing(10, epoch))
	sched.Advance(3 * time.Second)

	est, ok := c.Estimated()
	assert.Equal(t, ok, true)
	if !near(est, 13) {
		t.Errorf("Estimated = %v, want ~13", est)
	}

	c.ReceiveControl(paused(42))
	sched.Advance(time.Minute)
	est, _ = c.Estimated()
	assert.Equal(t, est, 42.0)
}

func TestCoordinator_StampsLocalBegin(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)
	sched.Advance(time.Second)

	c.ReceiveControl(Control{State: wire.StatePlaying, Time: 5})
	ctrl, ok := c.Control()
	assert.Equal(t, ok, true)
	assert.Equal(t, ctrl.LocalBegin, sched.Now().UnixMilli())
}

func TestCoordinator_DriftTolerance(t *testing.T) {
	tests := []struct {
		name     string
		local    float64
		wantSeek bool
	}{
		{"within tolerance", 13.2, false},
		{"just inside tolerance", 22.5, false},
		{"beyond tolerance", 25, true},
		{"behind", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sched, _ := newCoordinator(t, false)
			p := &fakePlayer{media: "intro", playing: true, pos: tt.local}
			c.Attach(p)

			sched.Advance(3 * time.Second)
			c.ReceiveControl(playing(10, epoch))

			if !tt.wantSeek {
				assert.Equal(t, len(p.seeks), 0)
				return
			}
			if len(p.seeks) != 1 || !near(p.seeks[0], 13) {
				t.Fatalf("seeks = %v, want one seek to ~13", p.seeks)
			}
		})
	}
}

func TestCoordinator_PlayerNotReady(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)
	p := &fakePlayer{media: "other"}
	c.Attach(p)

	c.ReceiveControl(playing(0, epoch))
	d, ok := sched.NextDue()
	assert.Equal(t, ok, true)
	assert.Equal(t, d, time.Second)

	sched.Advance(time.Second)
	assert.Equal(t, p.plays, 0)
	assert.Equal(t, sched.Pending(), 1)

	p.media = "intro"
	sched.Advance(time.Second)
	assert.Equal(t, p.plays, 1)
}

func TestCoordinator_PausedWithoutPlayerIsDropped(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)

	c.ReceiveControl(paused(7))
	assert.Equal(t, sched.Pending(), 0)
}

func TestCoordinator_NewerControlCancelsRetry(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)

	c.ReceiveControl(playing(0, epoch))
	assert.Equal(t, sched.Pending(), 1)

	c.ReceiveControl(playing(30, epoch))
	assert.Equal(t, sched.Pending(), 1)

	c.ReceiveControl(paused(30))
	assert.Equal(t, sched.Pending(), 0)
}

func TestCoordinator_Mute(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)
	muted := true

	c.ReceiveControl(playing(0, epoch))
	c.ReceiveControl(Control{Muted: &muted})

	// Mute does not replace the play/pause control.
	ctrl, _ := c.Control()
	assert.Equal(t, ctrl.State, wire.StatePlaying)

	p := &fakePlayer{media: "intro"}
	sched.Advance(50 * time.Millisecond)
	c.player = p
	assert.Equal(t, p.muted, false)

	sched.Advance(50 * time.Millisecond)
	assert.Equal(t, p.muted, true)
	assert.Equal(t, c.View().Muted, true)

	unmuted := false
	c.ReceiveControl(Control{Muted: &unmuted})
	assert.Equal(t, p.muted, false)
}

func TestCoordinator_DefersCorrectionUntilStarted(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)
	p := NewVirtualPlayer(sched, "intro", 600, WithStartDelay(250*time.Millisecond))
	c.Attach(p)

	c.ReceiveControl(playing(60, sched.Now()))
	assert.Equal(t, p.Playing(), false)
	assert.Equal(t, p.Position(), 0.0)

	sched.Advance(200 * time.Millisecond)
	assert.Equal(t, p.Playing(), false)
	assert.Equal(t, p.Position(), 0.0)

	sched.Advance(100 * time.Millisecond)
	if !p.Playing() {
		t.Fatal("player did not start")
	}
	if !near(p.Position(), 60.3) {
		t.Errorf("Position = %v, want ~60.3", p.Position())
	}
}

func TestCoordinator_PauseApplied(t *testing.T) {
	c, _, _ := newCoordinator(t, false)
	p := &fakePlayer{media: "intro", playing: true, pos: 80}
	c.Attach(p)

	c.ReceiveControl(paused(40))
	assert.Equal(t, p.pauses, 1)
	assert.Equal(t, p.seeks, []float64{40})
}

func TestCoordinator_ToggleSync(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)
	p := &fakePlayer{media: "intro"}
	c.Attach(p)

	c.ToggleSync()
	c.ReceiveControl(playing(0, epoch))
	assert.Equal(t, p.plays, 0)
	assert.Equal(t, c.View().IntendToSync, false)

	c.ToggleSync()
	assert.Equal(t, p.plays, 1)

	// Opting out cancels a pending start poll.
	c.ToggleSync()
	assert.Equal(t, sched.Pending(), 0)
}

func TestCoordinator_PlayForEveryone(t *testing.T) {
	t.Run("requires group control", func(t *testing.T) {
		c, _, sender := newCoordinator(t, false)
		err := c.PlayForEveryone()
		assert.Equal(t, errors.Is(err, ErrNoGroupControl), true)
		assert.Equal(t, len(sender.sent), 0)
	})

	t.Run("waits for duration", func(t *testing.T) {
		c, sched, sender := newCoordinator(t, true)
		p := NewVirtualPlayer(sched, "intro", 0)
		p.SeekTo(12)
		c.Attach(p)

		if err := c.PlayForEveryone(); err != nil {
			t.Fatalf("PlayForEveryone: %v", err)
		}
		assert.Equal(t, len(sender.sent), 0)

		sched.Advance(time.Second)
		assert.Equal(t, len(sender.sent), 0)

		p.SetDuration(300)
		sched.Advance(250 * time.Millisecond)
		if len(sender.sent) != 1 {
			t.Fatalf("sent = %v, want one play", sender.sent)
		}
		assert.Equal(t, sender.sent[0].Action, wire.ActionPlay)
		assert.Equal(t, *sender.sent[0].Time, 12.0)
		assert.Equal(t, sched.Pending(), 0)
	})

	t.Run("restarts at end", func(t *testing.T) {
		c, _, sender := newCoordinator(t, true)
		c.Attach(&fakePlayer{media: "intro", pos: 300, dur: 300})

		if err := c.PlayForEveryone(); err != nil {
			t.Fatalf("PlayForEveryone: %v", err)
		}
		assert.Equal(t, *sender.sent[0].Time, 0.0)
	})

	t.Run("pauses when playing", func(t *testing.T) {
		c, _, sender := newCoordinator(t, true)
		c.Attach(&fakePlayer{media: "intro", dur: 300})
		c.ReceiveControl(playing(0, epoch))

		if err := c.PlayForEveryone(); err != nil {
			t.Fatalf("PlayForEveryone: %v", err)
		}
		assert.Equal(t, sender.sent[0].Action, wire.ActionPause)
		assert.Equal(t, sender.sent[0].Time == nil, true)
	})

	t.Run("send error", func(t *testing.T) {
		c, _, sender := newCoordinator(t, true)
		sender.err = errors.New("not joined")
		c.Attach(&fakePlayer{media: "intro", dur: 300})

		if err := c.PlayForEveryone(); err == nil {
			t.Fatal("expected send error")
		}
	})
}

func TestCoordinator_MuteForEveryone(t *testing.T) {
	c, _, sender := newCoordinator(t, true)
	c.Attach(&fakePlayer{media: "intro"})

	if err := c.MuteForEveryone(); err != nil {
		t.Fatalf("MuteForEveryone: %v", err)
	}
	muted := true
	c.ReceiveControl(Control{Muted: &muted})
	if err := c.MuteForEveryone(); err != nil {
		t.Fatalf("MuteForEveryone: %v", err)
	}

	assert.Equal(t, sender.sent[0].Action, wire.ActionMute)
	assert.Equal(t, sender.sent[1].Action, wire.ActionUnmute)
}

func TestCoordinator_EndOfMedia(t *testing.T) {
	t.Run("group control pauses room", func(t *testing.T) {
		c, sched, sender := newCoordinator(t, true)
		p := &fakePlayer{media: "intro", playing: true, pos: 25, dur: 30}
		c.Attach(p)
		c.ReceiveControl(playing(25, sched.Now()))

		sched.Advance(3900 * time.Millisecond)
		assert.Equal(t, len(sender.sent), 0)

		sched.Advance(100 * time.Millisecond)
		if len(sender.sent) != 1 || sender.sent[0].Action != wire.ActionPause {
			t.Fatalf("sent = %v, want one pause", sender.sent)
		}
		assert.Equal(t, p.pauses, 0)
	})

	t.Run("others pause locally", func(t *testing.T) {
		c, sched, sender := newCoordinator(t, false)
		p := &fakePlayer{media: "intro", playing: true, pos: 25, dur: 30}
		c.Attach(p)
		c.ReceiveControl(playing(25, sched.Now()))

		sched.Advance(4 * time.Second)
		assert.Equal(t, len(sender.sent), 0)
		assert.Equal(t, p.pauses, 1)
	})

	t.Run("already past end", func(t *testing.T) {
		c, sched, sender := newCoordinator(t, true)
		p := &fakePlayer{media: "intro", playing: true, pos: 29.5, dur: 30}
		c.Attach(p)
		c.ReceiveControl(playing(29.5, sched.Now()))

		assert.Equal(t, len(sender.sent), 1)
	})

	t.Run("failed broadcast pauses locally", func(t *testing.T) {
		c, sched, sender := newCoordinator(t, true)
		sender.err = errors.New("not joined")
		p := &fakePlayer{media: "intro", playing: true, pos: 25, dur: 30}
		c.Attach(p)
		c.ReceiveControl(playing(25, sched.Now()))

		sched.Advance(4 * time.Second)
		assert.Equal(t, p.pauses, 1)
	})

	t.Run("drifted player", func(t *testing.T) {
		c, sched, sender := newCoordinator(t, true)
		p := &fakePlayer{media: "intro", playing: true, pos: 25, dur: 30}
		c.Attach(p)
		c.ReceiveControl(playing(25, sched.Now()))
		p.pos = 5

		sched.Advance(4 * time.Second)
		assert.Equal(t, len(sender.sent), 0)
		assert.Equal(t, p.pauses, 0)
	})

	t.Run("not synced", func(t *testing.T) {
		c, sched, sender := newCoordinator(t, true)
		p := &fakePlayer{media: "intro", playing: true, pos: 25, dur: 30}
		c.Attach(p)
		c.ReceiveControl(playing(25, sched.Now()))
		c.ToggleSync()

		sched.Advance(10 * time.Second)
		assert.Equal(t, len(sender.sent), 0)
	})
}

func TestCoordinator_BufferingPlayer(t *testing.T) {
	c, sched, _ := newCoordinator(t, false)
	p := &fakePlayer{media: "intro", buffering: true, pos: 0}
	c.Attach(p)

	c.ReceiveControl(playing(30, sched.Now()))
	assert.Equal(t, p.plays, 0)
	assert.Equal(t, len(p.seeks), 0)

	p.buffering = false
	p.playing = true
	sched.Advance(100 * time.Millisecond)
	if len(p.seeks) != 1 || !near(p.seeks[0], 30.1) {
		t.Fatalf("seeks = %v, want one seek to ~30.1", p.seeks)
	}
	assert.Equal(t, p.plays, 0)
}

// playingRoom attaches a virtual player following a room that started
// playing two seconds ago.
func playingRoom(t *testing.T, groupControl bool) (*Coordinator, *loop.Manual, *recordingSender, *VirtualPlayer) {
	t.Helper()
	c, sched, sender := newCoordinator(t, groupControl)
	p := NewVirtualPlayer(sched, "intro", 600)
	c.Attach(p)
	c.ReceiveControl(playing(0, sched.Now()))
	sched.Advance(2 * time.Second)
	if !p.Playing() || !near(p.Position(), 2) {
		t.Fatalf("player not following room: playing=%t position=%v", p.Playing(), p.Position())
	}
	return c, sched, sender, p
}

func TestCoordinator_PlayerPaused(t *testing.T) {
	t.Run("seek plays room from new position", func(t *testing.T) {
		c, _, sender, p := playingRoom(t, true)

		p.SeekTo(120)
		p.Pause()
		if len(sender.sent) != 1 {
			t.Fatalf("sent = %v, want one play", sender.sent)
		}
		assert.Equal(t, sender.sent[0].Action, wire.ActionPlay)
		assert.Equal(t, *sender.sent[0].Time, 120.0)
		assert.Equal(t, c.View().IntendToSync, true)
	})

	t.Run("nearby pause is ignored", func(t *testing.T) {
		c, _, sender, p := playingRoom(t, true)

		p.Pause()
		assert.Equal(t, len(sender.sent), 0)
		assert.Equal(t, c.View().IntendToSync, true)
	})

	t.Run("without group control stops following", func(t *testing.T) {
		c, sched, sender, p := playingRoom(t, false)

		p.Pause()
		assert.Equal(t, len(sender.sent), 0)
		assert.Equal(t, c.View().IntendToSync, false)

		c.ReceiveControl(playing(10, sched.Now()))
		assert.Equal(t, p.Playing(), false)
	})

	t.Run("stale control", func(t *testing.T) {
		c, sched, sender, p := playingRoom(t, false)

		sched.Advance(5 * time.Second)
		p.Pause()
		assert.Equal(t, len(sender.sent), 0)
		assert.Equal(t, c.View().IntendToSync, true)
	})

	t.Run("own pauses are ignored", func(t *testing.T) {
		c, sched, sender, p := playingRoom(t, false)

		c.ReceiveControl(paused(2))
		assert.Equal(t, p.Playing(), false)
		assert.Equal(t, c.View().IntendToSync, true)

		// Behind the room but within tolerance, so the end pause is local.
		p.SeekTo(592)
		p.Play()
		c.ReceiveControl(playing(599.5, sched.Now()))
		assert.Equal(t, p.Playing(), false)
		assert.Equal(t, near(p.Position(), 592), true)
		assert.Equal(t, len(sender.sent), 0)
		assert.Equal(t, c.View().IntendToSync, true)
	})

	t.Run("detached player", func(t *testing.T) {
		c, _, sender, p := playingRoom(t, true)

		c.Attach(&fakePlayer{media: "intro", playing: true, pos: 2})
		p.SeekTo(120)
		p.Pause()
		assert.Equal(t, len(sender.sent), 0)
	})
}

func TestCoordinator_View(t *testing.T) {
	c, sched, _ := newCoordinator(t, true)
	p := &fakePlayer{media: "intro", playing: true, pos: 10}
	c.Attach(p)

	var rendered []View
	c.OnRender(func(v View) { rendered = append(rendered, v) })

	c.ReceiveControl(playing(10, sched.Now()))
	v := c.View()
	assert.Equal(t, v.Playing, true)
	assert.Equal(t, v.SyncAvailable, true)
	assert.Equal(t, v.Synced, true)
	assert.Equal(t, v.ShowGroupControls, true)
	if len(rendered) == 0 {
		t.Error("no render after control")
	}

	sched.Advance(5 * time.Second)
	v = c.View()
	assert.Equal(t, v.SyncAvailable, false)
	assert.Equal(t, v.Synced, false)
}

func TestCoordinator_Stop(t *testing.T) {
	c, sched, _ := newCoordinator(t, true)
	muted := true

	c.ReceiveControl(playing(0, epoch))
	c.ReceiveControl(Control{Muted: &muted})
	_ = c.PlayForEveryone()

	c.Stop()
	assert.Equal(t, sched.Pending(), 0)
}
