package mediasync

import "time"

// Player is a local media player the Coordinator drives.
type Player interface {
	MediaID() string
	Playing() bool
	Buffering() bool   // A requested play has not begun yet
	Position() float64 // Seconds
	Duration() float64 // Seconds, zero while unknown
	Muted() bool

	Play()
	Pause()
	SeekTo(seconds float64)
	Mute()
	Unmute()
}

// PauseNotifier is implemented by players that report pauses. Attach
// routes them to Coordinator.PlayerPaused.
type PauseNotifier interface {
	OnPause(fn func())
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// VirtualPlayer is a headless Player whose position advances with a clock.
// It is not safe for concurrent use; drive it from the loop.
type VirtualPlayer struct {
	clock    Clock
	mediaID  string
	duration float64

	startDelay time.Duration

	playing bool
	startAt time.Time // When a requested play actually begins
	base    float64   // Position at anchor
	anchor  time.Time
	muted   bool

	onPause func()
}

// VirtualOption configures a VirtualPlayer.
type VirtualOption func(*VirtualPlayer)

// WithStartDelay sets how long Play takes before the player reports playing.
func WithStartDelay(d time.Duration) VirtualOption {
	return func(p *VirtualPlayer) {
		p.startDelay = d
	}
}

// NewVirtualPlayer creates a paused player at position zero. A zero
// duration stays unknown until SetDuration.
func NewVirtualPlayer(clock Clock, mediaID string, duration float64, opts ...VirtualOption) *VirtualPlayer {
	p := &VirtualPlayer{
		clock:    clock,
		mediaID:  mediaID,
		duration: duration,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetDuration makes the media length known.
func (p *VirtualPlayer) SetDuration(seconds float64) {
	p.duration = seconds
}

func (p *VirtualPlayer) MediaID() string   { return p.mediaID }
func (p *VirtualPlayer) Duration() float64 { return p.duration }
func (p *VirtualPlayer) Muted() bool       { return p.muted }
func (p *VirtualPlayer) Mute()             { p.muted = true }
func (p *VirtualPlayer) Unmute()           { p.muted = false }

// OnPause registers fn to run whenever playback pauses.
func (p *VirtualPlayer) OnPause(fn func()) {
	p.onPause = fn
}

// Buffering reports whether a requested play is still waiting to begin.
func (p *VirtualPlayer) Buffering() bool {
	return p.playing && p.clock.Now().Before(p.startAt)
}

// Playing reports whether playback has begun and not reached the end.
func (p *VirtualPlayer) Playing() bool {
	if !p.playing || p.clock.Now().Before(p.startAt) {
		return false
	}
	return p.duration <= 0 || p.Position() < p.duration
}

// Position returns the current playback position.
func (p *VirtualPlayer) Position() float64 {
	pos := p.base
	now := p.clock.Now()
	if p.playing && !now.Before(p.anchor) {
		pos += now.Sub(p.anchor).Seconds()
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}

// Play starts playback after the configured start delay.
func (p *VirtualPlayer) Play() {
	if p.playing {
		return
	}
	p.playing = true
	p.startAt = p.clock.Now().Add(p.startDelay)
	p.anchor = p.startAt
}

// Pause stops playback at the current position.
func (p *VirtualPlayer) Pause() {
	if !p.playing {
		return
	}
	p.base = p.Position()
	p.playing = false
	if p.onPause != nil {
		p.onPause()
	}
}

// SeekTo moves the position. A pending start still waits for its delay.
func (p *VirtualPlayer) SeekTo(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	if p.duration > 0 && seconds > p.duration {
		seconds = p.duration
	}
	p.base = seconds
	if now := p.clock.Now(); now.After(p.startAt) {
		p.anchor = now
	} else {
		p.anchor = p.startAt
	}
}
