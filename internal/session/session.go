package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/roomsync/internal/api"
	"github.com/rickgao/roomsync/internal/applier"
	"github.com/rickgao/roomsync/internal/clock"
	"github.com/rickgao/roomsync/internal/connection"
	"github.com/rickgao/roomsync/internal/loop"
	"github.com/rickgao/roomsync/internal/mediasync"
	"github.com/rickgao/roomsync/internal/model"
	"github.com/rickgao/roomsync/internal/reconnect"
)

// Errors
var (
	ErrUnknownRoot    = errors.New("unknown root")
	ErrAlreadyRunning = errors.New("session already running")
)

const shutdownTimeout = 10 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithPlayer attaches p instead of the headless player.
func WithPlayer(p mediasync.Player) Option {
	return func(s *Session) {
		s.player = p
	}
}

// WithManagerOptions passes options through to the connection manager.
func WithManagerOptions(opts ...connection.ManagerOption) Option {
	return func(s *Session) {
		s.managerOpts = append(s.managerOpts, opts...)
	}
}

// WithSupervisorOptions passes options through to the reconnect supervisor.
func WithSupervisorOptions(opts ...reconnect.Option) Option {
	return func(s *Session) {
		s.supervisorOpts = append(s.supervisorOpts, opts...)
	}
}

// Status is a point-in-time view of a session.
type Status struct {
	Room         string           `json:"room"`
	State        connection.State `json:"state"`
	LastSeen     *clock.Timestamp `json:"lastSeen,omitempty"`
	Attempt      string           `json:"attempt,omitempty"`
	Reconnecting bool             `json:"reconnecting"`
	Resyncs      int              `json:"resyncs"`
	Media        mediasync.View   `json:"media"`
}

// Session is a sync client for one room.
type Session struct {
	cfg            Config
	roots          []model.RootSpec
	loop           *loop.Loop
	api            *api.Client
	registry       *applier.Registry
	applier        *applier.Applier
	manager        *connection.Manager
	supervisor     *reconnect.Supervisor
	media          *mediasync.Coordinator
	player         mediasync.Player
	managerOpts    []connection.ManagerOption
	supervisorOpts []reconnect.Option
	logger         *slog.Logger

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	fetches sync.WaitGroup

	// Loop-owned state
	initial   map[string]model.Node // Pristine trees for a rebuild without snapshot
	resyncs   int
	resyncGen uint64
}

// New builds a session. Nothing connects until Run.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:      cfg,
		roots:    cfg.Roots,
		registry: applier.NewRegistry(),
		initial:  make(map[string]model.Node),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.roots == nil {
		s.roots = model.DefaultRoots
	}
	s.logger = logger.With("component", "session", "room", cfg.Connection.RoomID)
	s.loop = loop.New(s.logger)

	for _, spec := range s.roots {
		node, err := model.NewRoot(spec, nil)
		if err != nil {
			return nil, err
		}
		s.registry.Register(spec.Name, node)
		s.initial[spec.Name] = model.Clone(node).(model.Node)
	}
	s.applier = applier.New(s.registry, logger)

	s.api = api.NewClient(cfg.Origin, "",
		api.WithLogger(logger),
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithRetries(cfg.MaxRetries, time.Second),
		api.WithStatusPath(cfg.StatusPath),
		api.WithSnapshotPath(cfg.SnapshotPath),
	)

	s.manager = connection.NewManager(cfg.Connection, s.loop, s.applier, logger, s.managerOpts...)
	s.supervisor = reconnect.New(cfg.Reconnect, s.loop, s.api, s.manager.Recovered, logger, s.supervisorOpts...)
	s.manager.SetSupervisor(s.supervisor)

	s.media = mediasync.New(cfg.Media, s.loop, s.manager, logger)
	if s.player == nil && cfg.Media.MediaID != "" {
		s.player = mediasync.NewVirtualPlayer(s.loop, cfg.Media.MediaID, cfg.MediaDuration)
	}
	if s.player != nil {
		s.media.Attach(s.player)
	}

	s.manager.OnControl(s.media.ReceiveControl)
	s.manager.OnRecover(s.recover)
	s.media.OnRender(func(v mediasync.View) {
		s.logger.Debug("media view", "view", v)
	})

	return s, nil
}

// Run seeds the roots, joins the room and blocks until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	// The loop is not running yet, so the initial seed touches loop-owned
	// state directly.
	if s.cfg.FetchSnapshot {
		snap, err := s.fetchSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("initial snapshot: %w", err)
		}
		if err := s.seed(snap); err != nil {
			return fmt.Errorf("initial snapshot: %w", err)
		}
		s.manager.ResetResume(&snap.Timestamp)
	}

	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()

	s.mu.Lock()
	s.runCtx = loopCtx
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		err := s.loop.Run(loopCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	var startErr error
	if err := s.loop.Call(ctx, func() { startErr = s.manager.Start(loopCtx) }); err != nil && startErr == nil {
		startErr = err
	}
	if startErr == nil {
		s.logger.Info("session running", "url", s.cfg.Connection.Client.URL)
		<-ctx.Done()
	}

	s.logger.Info("stopping session")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.loop.Call(shutdownCtx, func() {
		s.media.Stop()
		s.manager.Stop(shutdownCtx)
	})
	stopLoop()
	s.fetches.Wait()

	if err := g.Wait(); err != nil {
		return err
	}
	if startErr != nil {
		return fmt.Errorf("start connection: %w", startErr)
	}
	s.logger.Info("session stopped")
	return nil
}

// -----------------------------------------------------------------------------
// Recovery
// -----------------------------------------------------------------------------

func (s *Session) recover(r connection.Recovery) {
	switch r.Reason {
	case connection.RecoveryBackUp:
		s.rejoin()
	case connection.RecoveryStaleState:
		s.resync()
	}
}

func (s *Session) rejoin() {
	if err := s.manager.Reconnect(); err != nil {
		s.logger.Warn("rejoin failed", "error", err)
	}
}

// resync rebuilds the roots after the resume point went stale.
func (s *Session) resync() {
	s.resyncs++
	s.resyncGen++

	if !s.cfg.FetchSnapshot {
		s.logger.Warn("state is stale; rebuilding from initial trees")
		s.reset()
		s.manager.ResetResume(nil)
		s.rejoin()
		return
	}

	s.logger.Warn("state is stale; fetching snapshot")
	gen := s.resyncGen
	ctx := s.context()
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		snap, err := s.fetchSnapshot(ctx)
		s.loop.Post(func() { s.resynced(gen, snap, err) })
	}()
}

func (s *Session) resynced(gen uint64, snap *api.Snapshot, err error) {
	if gen != s.resyncGen {
		return
	}
	if err == nil {
		err = s.seed(snap)
	}
	if err != nil {
		s.logger.Warn("snapshot resync failed; rebuilding from initial trees", "error", err)
		s.reset()
		s.manager.ResetResume(nil)
	} else {
		s.manager.ResetResume(&snap.Timestamp)
	}
	s.rejoin()
}

func (s *Session) fetchSnapshot(ctx context.Context) (*api.Snapshot, error) {
	snap, err := s.api.Snapshot(ctx, s.cfg.Connection.RoomID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("snapshot fetched", "timestamp", snap.Timestamp, "roots", len(snap.Roots))
	return snap, nil
}

// seed replaces every root with the snapshot's tree and remembers it as
// the initial state.
func (s *Session) seed(snap *api.Snapshot) error {
	nodes := make(map[string]model.Node, len(s.roots))
	for _, spec := range s.roots {
		node, err := model.DecodeRoot(spec, snap.Roots[spec.Name])
		if err != nil {
			return err
		}
		nodes[spec.Name] = node
	}
	for name, node := range nodes {
		s.registry.Register(name, node)
		s.initial[name] = model.Clone(node).(model.Node)
	}
	return nil
}

// reset replaces every root with a copy of its initial tree.
func (s *Session) reset() {
	for name, node := range s.initial {
		s.registry.Register(name, model.Clone(node).(model.Node))
	}
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

// -----------------------------------------------------------------------------
// Queries and commands
// -----------------------------------------------------------------------------

// Status returns the session status.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.loop.Call(ctx, func() {
		st = Status{
			Room:         s.cfg.Connection.RoomID,
			State:        s.manager.State(),
			Attempt:      s.manager.Attempt(),
			Reconnecting: s.supervisor.Running(),
			Resyncs:      s.resyncs,
			Media:        s.media.View(),
		}
		if ts, ok := s.manager.LastSeen(); ok {
			st.LastSeen = &ts
		}
	})
	return st, err
}

// Roots returns plain snapshots of every registered tree.
func (s *Session) Roots(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)
	err := s.loop.Call(ctx, func() {
		for _, name := range s.registry.Names() {
			node, _ := s.registry.Lookup(name)
			out[name] = model.Snapshot(node)
		}
	})
	return out, err
}

// Root returns a plain snapshot of one tree.
func (s *Session) Root(ctx context.Context, name string) (any, error) {
	var (
		out any
		ok  bool
	)
	if err := s.loop.Call(ctx, func() {
		var node model.Node
		if node, ok = s.registry.Lookup(name); ok {
			out = model.Snapshot(node)
		}
	}); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, name)
	}
	return out, nil
}

// Reconnect dials again after a terminal error or a close.
func (s *Session) Reconnect(ctx context.Context) error {
	return s.call(ctx, s.manager.Reconnect)
}

// PlayForEveryone starts the media for the whole room.
func (s *Session) PlayForEveryone(ctx context.Context) error {
	return s.call(ctx, s.media.PlayForEveryone)
}

// MuteForEveryone toggles mute for the whole room.
func (s *Session) MuteForEveryone(ctx context.Context) error {
	return s.call(ctx, s.media.MuteForEveryone)
}

// ToggleSync switches between following the room and local playback.
func (s *Session) ToggleSync(ctx context.Context) error {
	return s.loop.Call(ctx, s.media.ToggleSync)
}

func (s *Session) call(ctx context.Context, fn func() error) error {
	var err error
	if callErr := s.loop.Call(ctx, func() { err = fn() }); callErr != nil {
		return callErr
	}
	return err
}
