package mediasync

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/rickgao/roomsync/internal/loop"
	"github.com/rickgao/roomsync/internal/wire"
)

// ErrNoGroupControl is returned when this client may not control the room.
var ErrNoGroupControl = errors.New("group control not permitted")

// Control is the authoritative playback state.
type Control = wire.PlaybackControl

// Sender delivers outbound commands to the relay.
type Sender interface {
	Send(cmd wire.Command) error
}

// Config holds coordinator settings.
type Config struct {
	MediaID      string // Media item this view syncs
	GroupControl bool   // May broadcast controls to the room

	DriftTolerance time.Duration // Allowed divergence before seeking
	EndTolerance   time.Duration // Distance from the end treated as finished
	PlayerRetry    time.Duration // Retry while no matching player is attached
	MuteRetry      time.Duration // Retry for mute while no player is attached
	StartPoll      time.Duration // Poll while waiting for playback to begin
	DurationPoll   time.Duration // Poll while the media duration is unknown
	SyncWindow     time.Duration // How long a control keeps sync available
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() Config {
	return Config{
		DriftTolerance: 10 * time.Second,
		EndTolerance:   time.Second,
		PlayerRetry:    time.Second,
		MuteRetry:      100 * time.Millisecond,
		StartPoll:      100 * time.Millisecond,
		DurationPoll:   250 * time.Millisecond,
		SyncWindow:     5 * time.Second,
	}
}

// View is the state a rendering layer needs to draw playback controls.
type View struct {
	Playing           bool    `json:"playing"`
	Muted             bool    `json:"muted"`
	Synced            bool    `json:"synced"`
	SyncAvailable     bool    `json:"syncAvailable"`
	IntendToSync      bool    `json:"intendToSync"`
	ShowGroupControls bool    `json:"showGroupControls"`
	Estimated         float64 `json:"estimated"`
}

// Coordinator reconciles a Player with the latest Control.
type Coordinator struct {
	cfg    Config
	sched  loop.Scheduler
	sender Sender
	logger *slog.Logger

	player       Player
	ctrl         *Control
	muted        bool
	lastControl  time.Time
	intendToSync bool
	endHandled   bool
	pausing      bool // Inside a pause the coordinator requested

	// Delayed work. Each is cancelled before being replaced.
	retry        *loop.Task
	startPoll    *loop.Task
	durationPoll *loop.Task
	muteRetry    *loop.Task
	endWatch     *loop.Task

	renderSubs []func(View)
}

// New creates a coordinator. sender may be nil for a view without outbound
// controls.
func New(cfg Config, sched loop.Scheduler, sender Sender, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:          cfg,
		sched:        sched,
		sender:       sender,
		logger:       logger.With("component", "mediasync"),
		intendToSync: true,
	}
}

// OnRender registers fn to receive the view after every change.
func (c *Coordinator) OnRender(fn func(View)) {
	c.renderSubs = append(c.renderSubs, fn)
}

// -----------------------------------------------------------------------------
// Player attachment
// -----------------------------------------------------------------------------

// Attach sets the local player and applies the current control to it.
func (c *Coordinator) Attach(p Player) {
	c.player = p
	if n, ok := p.(PauseNotifier); ok {
		n.OnPause(func() {
			if c.player == p {
				c.PlayerPaused()
			}
		})
	}
	if c.ctrl != nil {
		c.cancelPending()
		c.reconcile()
		return
	}
	c.render()
}

// Detach forgets the local player.
func (c *Coordinator) Detach() {
	c.player = nil
	c.cancelPending()
	c.render()
}

// SetMedia changes the media item this view syncs.
func (c *Coordinator) SetMedia(id string) {
	if id == c.cfg.MediaID {
		return
	}
	c.cfg.MediaID = id
	if c.ctrl != nil {
		c.cancelPending()
		c.reconcile()
	}
}

// SetGroupControl grants or revokes permission to broadcast controls.
func (c *Coordinator) SetGroupControl(allowed bool) {
	c.cfg.GroupControl = allowed
	c.render()
}

// Stop cancels all delayed work.
func (c *Coordinator) Stop() {
	c.cancelPending()
	c.durationPoll.Cancel()
	c.muteRetry.Cancel()
}

// -----------------------------------------------------------------------------
// Inbound controls
// -----------------------------------------------------------------------------

// ReceiveControl applies an authoritative control from the relay.
func (c *Coordinator) ReceiveControl(ctrl Control) {
	if ctrl.Muted != nil {
		c.applyMute(*ctrl.Muted)
		return
	}

	c.cancelPending()
	if ctrl.LocalBegin == 0 {
		ctrl.LocalBegin = c.sched.Now().UnixMilli()
	}
	c.ctrl = &ctrl
	c.lastControl = c.sched.Now()
	c.endHandled = false

	c.logger.Debug("control received", "state", ctrl.State, "time", ctrl.Time)
	c.reconcile()
}

// reconcile brings the player in line with the stored control.
func (c *Coordinator) reconcile() {
	ctrl := *c.ctrl

	if !c.playerReady() {
		if ctrl.Playing() {
			c.retry = c.sched.AfterFunc(c.cfg.PlayerRetry, c.reconcile)
		}
		c.render()
		return
	}

	if !c.intendToSync {
		c.render()
		return
	}

	switch {
	case c.player.Playing() != ctrl.Playing():
		switch {
		case ctrl.Playing() && c.player.Buffering():
			// Already starting; only the correction is left.
			c.waitForStart()
		case ctrl.Playing():
			c.player.Play()
			c.waitForStart()
		default:
			c.pause()
			c.correct()
		}
	case ctrl.Playing():
		c.correct()
		c.watchEnd()
	}

	c.render()
}

// waitForStart polls until the player reports playing, then corrects the
// position. Seeking a player that has not started yet is unreliable.
func (c *Coordinator) waitForStart() {
	c.startPoll = c.sched.AfterFunc(c.cfg.StartPoll, func() {
		if !c.playerReady() {
			return
		}
		if !c.player.Playing() {
			c.waitForStart()
			return
		}
		c.correct()
		c.watchEnd()
		c.render()
	})
}

// correct seeks the player to the estimate when drift exceeds tolerance.
func (c *Coordinator) correct() {
	est, ok := c.Estimated()
	if !ok || c.inTolerance(est) {
		return
	}
	c.logger.Debug("correcting drift", "position", c.player.Position(), "estimated", est)
	c.player.SeekTo(est)
}

// applyMute mutes or unmutes the player, waiting for one to be attached.
func (c *Coordinator) applyMute(muted bool) {
	c.muted = muted
	c.muteRetry.Cancel()
	if c.player == nil {
		c.muteRetry = c.sched.AfterFunc(c.cfg.MuteRetry, func() { c.applyMute(muted) })
		return
	}
	if muted {
		c.player.Mute()
	} else {
		c.player.Unmute()
	}
	c.render()
}

// pause pauses the player without reading it as a viewer action.
func (c *Coordinator) pause() {
	c.pausing = true
	c.player.Pause()
	c.pausing = false
}

func (c *Coordinator) cancelPending() {
	c.retry.Cancel()
	c.startPoll.Cancel()
	c.endWatch.Cancel()
}

// playerReady reports whether a player for this view's media is attached.
func (c *Coordinator) playerReady() bool {
	return c.player != nil && c.player.MediaID() == c.cfg.MediaID
}

// -----------------------------------------------------------------------------
// End of media
// -----------------------------------------------------------------------------

// watchEnd schedules the end-of-media check for when the estimate reaches
// the end window. Unknown durations are rechecked on the next control.
func (c *Coordinator) watchEnd() {
	c.endWatch.Cancel()
	dur := c.player.Duration()
	if dur <= 0 {
		return
	}
	est, _ := c.Estimated()
	remaining := dur - c.cfg.EndTolerance.Seconds() - est
	if remaining <= 0 {
		c.handleEnd()
		return
	}
	c.endWatch = c.sched.AfterFunc(time.Duration(remaining*float64(time.Second)), c.handleEnd)
}

// handleEnd pauses at the end of the media: for the room when permitted,
// otherwise only locally. A failed broadcast falls back to a local pause.
func (c *Coordinator) handleEnd() {
	if c.endHandled || c.ctrl == nil || !c.ctrl.Playing() || !c.intendToSync || !c.playerReady() {
		return
	}
	est, _ := c.Estimated()
	if dur := c.player.Duration(); dur <= 0 || est < dur-c.cfg.EndTolerance.Seconds() {
		return
	}
	if !c.inTolerance(est) {
		return
	}

	if c.cfg.GroupControl && c.sender != nil {
		err := c.sender.Send(wire.VideoCommand{Action: wire.ActionPause})
		if err == nil {
			c.logger.Info("media finished, pausing room")
			c.endHandled = true
			return
		}
		c.logger.Warn("pause broadcast failed, pausing locally", "error", err)
	}
	c.endHandled = true
	c.pause()
	c.render()
}

// -----------------------------------------------------------------------------
// Player events
// -----------------------------------------------------------------------------

// PlayerPaused handles a pause reported by the local player. While this
// client follows a playing room the pause is taken as the viewer's doing.
// With group control, a position beyond the drift tolerance is a seek and
// the room is played from there; a nearby pause is buffering and ignored.
// Without group control the client stops following the room.
func (c *Coordinator) PlayerPaused() {
	if c.pausing || !c.intendToSync || !c.syncAvailable() || !c.playerReady() {
		return
	}
	pos := c.player.Position()
	if dur := c.player.Duration(); dur > 0 && pos >= dur-c.cfg.EndTolerance.Seconds() {
		return
	}

	if c.canBroadcast() != nil {
		c.logger.Info("player paused, no longer following room")
		c.ToggleSync()
		return
	}

	est, _ := c.Estimated()
	if c.inTolerance(est) {
		c.render()
		return
	}
	c.logger.Debug("player seeked, playing room from new position", "position", pos, "estimated", est)
	if err := c.sender.Send(wire.VideoCommand{Action: wire.ActionPlay, Time: &pos}); err != nil {
		c.logger.Warn("play broadcast failed", "error", err)
	}
	c.render()
}

// -----------------------------------------------------------------------------
// Outbound controls
// -----------------------------------------------------------------------------

// PlayForEveryone pauses the room when it is playing and otherwise plays it
// from the local position. While the media duration is unknown the play is
// deferred until it is.
func (c *Coordinator) PlayForEveryone() error {
	if err := c.canBroadcast(); err != nil {
		return err
	}
	c.durationPoll.Cancel()

	if c.ctrl != nil && c.ctrl.Playing() {
		return c.sender.Send(wire.VideoCommand{Action: wire.ActionPause})
	}
	if c.player == nil || c.player.Duration() <= 0 {
		c.durationPoll = c.sched.AfterFunc(c.cfg.DurationPoll, c.pollDuration)
		return nil
	}
	return c.broadcastPlay()
}

func (c *Coordinator) pollDuration() {
	if c.player == nil || c.player.Duration() <= 0 {
		c.durationPoll = c.sched.AfterFunc(c.cfg.DurationPoll, c.pollDuration)
		return
	}
	if err := c.broadcastPlay(); err != nil {
		c.logger.Warn("play broadcast failed", "error", err)
	}
}

func (c *Coordinator) broadcastPlay() error {
	t := c.player.Position()
	if t >= c.player.Duration() {
		t = 0
	}
	return c.sender.Send(wire.VideoCommand{Action: wire.ActionPlay, Time: &t})
}

// MuteForEveryone toggles the room's mute state.
func (c *Coordinator) MuteForEveryone() error {
	if err := c.canBroadcast(); err != nil {
		return err
	}
	action := wire.ActionMute
	if c.muted {
		action = wire.ActionUnmute
	}
	return c.sender.Send(wire.VideoCommand{Action: action})
}

func (c *Coordinator) canBroadcast() error {
	if !c.cfg.GroupControl || c.sender == nil {
		return ErrNoGroupControl
	}
	return nil
}

// ToggleSync opts this client out of, or back into, following the room.
// Opting back in re-applies the latest control.
func (c *Coordinator) ToggleSync() {
	c.intendToSync = !c.intendToSync
	c.cancelPending()
	if c.intendToSync && c.ctrl != nil {
		c.reconcile()
		return
	}
	c.render()
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Estimated returns the extrapolated shared position in seconds. ok is false
// before the first control.
func (c *Coordinator) Estimated() (float64, bool) {
	if c.ctrl == nil {
		return 0, false
	}
	return estimate(*c.ctrl, c.sched.Now()), true
}

func estimate(ctrl Control, now time.Time) float64 {
	if !ctrl.Playing() {
		return ctrl.Time
	}
	return ctrl.Time + float64(now.UnixMilli()-ctrl.LocalBegin)/1000
}

// Control returns the latest play/pause control.
func (c *Coordinator) Control() (Control, bool) {
	if c.ctrl == nil {
		return Control{}, false
	}
	return *c.ctrl, true
}

// View returns the current rendering state.
func (c *Coordinator) View() View {
	est, _ := c.Estimated()
	return View{
		Playing:           c.ctrl != nil && c.ctrl.Playing(),
		Muted:             c.muted,
		Synced:            c.synced(),
		SyncAvailable:     c.syncAvailable(),
		IntendToSync:      c.intendToSync,
		ShowGroupControls: c.cfg.GroupControl,
		Estimated:         est,
	}
}

// syncAvailable reports whether a recent control says the room is playing.
func (c *Coordinator) syncAvailable() bool {
	return c.ctrl != nil && c.ctrl.Playing() && c.sched.Now().Sub(c.lastControl) < c.cfg.SyncWindow
}

func (c *Coordinator) synced() bool {
	if !c.syncAvailable() || !c.playerReady() {
		return false
	}
	est, _ := c.Estimated()
	return c.player.Playing() == c.ctrl.Playing() &&
		c.player.Muted() == c.muted &&
		c.inTolerance(est)
}

// inTolerance reports whether the player is within the drift tolerance of est.
func (c *Coordinator) inTolerance(est float64) bool {
	return math.Abs(c.player.Position()-est) <= c.cfg.DriftTolerance.Seconds()
}

func (c *Coordinator) render() {
	if len(c.renderSubs) == 0 {
		return
	}
	v := c.View()
	for _, fn := range c.renderSubs {
		fn(v)
	}
}

func (v View) String() string {
	return fmt.Sprintf("playing=%t muted=%t synced=%t at %.1fs", v.Playing, v.Muted, v.Synced, v.Estimated)
}
