package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/roomsync/internal/clock"
	"github.com/rickgao/roomsync/internal/loop"
	"github.com/rickgao/roomsync/internal/wire"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClientFactory replaces the WebSocket client constructor.
func WithClientFactory(f NewClientFunc) ManagerOption {
	return func(m *Manager) {
		m.newClient = f
	}
}

// WithSupervisor sets the supervisor started on every close.
func WithSupervisor(s Supervisor) ManagerOption {
	return func(m *Manager) {
		m.supervisor = s
	}
}

// Manager runs the relay handshake and routes inbound messages.
// All methods must be called on the scheduler's loop.
type Manager struct {
	cfg        ManagerConfig
	sched      loop.Scheduler
	handler    StateHandler
	supervisor Supervisor
	newClient  NewClientFunc
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Loop-owned state
	state    State
	lastSeen *clock.Timestamp
	client   Client
	attempt  string
	gen      uint64
	stopped  bool

	// Subscribers
	statusSubs     []func(State)
	disconnectSubs []func()
	recoverSubs    []func(Recovery)
	controlSubs    []func(wire.PlaybackControl)
	messageSubs    []func(wire.Inbound)
}

// NewManager creates a Manager. handler receives state-message args and may be nil.
func NewManager(cfg ManagerConfig, sched loop.Scheduler, handler StateHandler, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:       cfg,
		sched:     sched,
		handler:   handler,
		newClient: NewClient,
		logger:    logger.With("component", "connection", "room", cfg.RoomID),
		state:     StateConnecting,
	}
	if cfg.InitialTimestamp != nil {
		ts := *cfg.InitialTimestamp
		m.lastSeen = &ts
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSupervisor sets the supervisor started on every close.
func (m *Manager) SetSupervisor(s Supervisor) {
	m.supervisor = s
}

// -----------------------------------------------------------------------------
// Subscribers
// -----------------------------------------------------------------------------

// OnStatus registers fn for every state change.
func (m *Manager) OnStatus(fn func(State)) {
	m.statusSubs = append(m.statusSubs, fn)
}

// OnDisconnect registers fn for socket loss and stale state.
func (m *Manager) OnDisconnect(fn func()) {
	m.disconnectSubs = append(m.disconnectSubs, fn)
}

// OnRecover registers fn for recovery signals.
func (m *Manager) OnRecover(fn func(Recovery)) {
	m.recoverSubs = append(m.recoverSubs, fn)
}

// OnControl registers fn for control-video broadcasts received while joined.
func (m *Manager) OnControl(fn func(wire.PlaybackControl)) {
	m.controlSubs = append(m.controlSubs, fn)
}

// OnMessage registers fn for every decoded inbound message.
func (m *Manager) OnMessage(fn func(wire.Inbound)) {
	m.messageSubs = append(m.messageSubs, fn)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start dials the relay.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.Key == "" || m.cfg.UserID == "" {
		return ErrMissingCredentials
	}
	if m.ctx != nil {
		return errors.New("manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.logger.Info("connection manager started", "url", m.cfg.Client.URL)
	m.connect()
	return nil
}

// Stop closes the socket and waits for background goroutines.
func (m *Manager) Stop(ctx context.Context) error {
	if m.ctx == nil || m.stopped {
		return nil
	}
	m.stopped = true
	m.logger.Info("stopping connection manager")

	m.cancel()
	if m.supervisor != nil {
		m.supervisor.Stop()
	}
	m.dropClient()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// Reconnect dials again from CLOSED or a terminal error state.
func (m *Manager) Reconnect() error {
	if m.ctx == nil {
		return ErrNotStarted
	}
	if m.stopped {
		return loop.ErrStopped
	}
	if !m.state.Reconnectable() {
		return fmt.Errorf("%w: %s", ErrReconnectActive, m.state)
	}

	m.logger.Info("manual reconnect", "from", m.state)
	if m.supervisor != nil {
		m.supervisor.Stop()
	}
	m.dropClient()
	m.connect()
	return nil
}

// ResetResume replaces the resume point sent with the next join. A nil ts
// joins without one.
func (m *Manager) ResetResume(ts *clock.Timestamp) {
	if ts == nil {
		m.lastSeen = nil
		return
	}
	t := *ts
	m.lastSeen = &t
}

// Recovered is called by the supervisor when the relay is back.
func (m *Manager) Recovered() {
	if m.stopped || m.state != StateClosed {
		m.logger.Debug("ignoring recovery", "state", m.state)
		return
	}
	m.logger.Info("relay is back up")
	m.emitRecover(Recovery{Reason: RecoveryBackUp})
}

// State returns the current state.
func (m *Manager) State() State {
	return m.state
}

// LastSeen returns the timestamp of the latest processed message.
func (m *Manager) LastSeen() (clock.Timestamp, bool) {
	if m.lastSeen == nil {
		return clock.Timestamp{}, false
	}
	return *m.lastSeen, true
}

// Attempt returns the id of the current dial attempt.
func (m *Manager) Attempt() string {
	return m.attempt
}

// Send writes an application command. Only allowed while JOINED.
func (m *Manager) Send(cmd wire.Command) error {
	if m.state != StateJoined {
		return fmt.Errorf("%w: %s", ErrNotJoined, m.state)
	}
	return m.send(cmd)
}

// -----------------------------------------------------------------------------
// Socket handling
// -----------------------------------------------------------------------------

// connect starts a dial attempt. Results of older attempts are ignored.
func (m *Manager) connect() {
	m.gen++
	gen := m.gen
	m.attempt = uuid.NewString()
	m.setState(StateConnecting)

	logger := m.logger.With("attempt", m.attempt)
	client := m.newClient(m.cfg.Client, logger)
	ctx := m.ctx

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		err := client.Connect(ctx)
		m.sched.Post(func() { m.opened(gen, client, err) })
		if err == nil {
			m.pump(ctx, gen, client)
		}
		if ctx.Err() != nil {
			client.Close()
		}
	}()
}

// pump forwards frames to the loop in arrival order.
func (m *Manager) pump(ctx context.Context, gen uint64, client Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case msg := <-client.Messages():
			m.sched.Post(func() { m.receive(gen, msg) })
		case err := <-client.Errors():
			// Frames read before the error still go first.
			for {
				select {
				case msg := <-client.Messages():
					m.sched.Post(func() { m.receive(gen, msg) })
					continue
				default:
				}
				break
			}
			m.sched.Post(func() { m.lost(gen, err) })
			return
		}
	}
}

func (m *Manager) opened(gen uint64, client Client, err error) {
	if gen != m.gen || m.stopped {
		client.Close()
		return
	}
	if err != nil {
		m.logger.Warn("dial failed", "attempt", m.attempt, "error", err)
		m.closed(err)
		return
	}

	m.client = client
	m.setState(StateAuthenticating)
	if err := m.send(wire.Auth{Key: m.cfg.Key, ID: m.cfg.UserID}); err != nil {
		m.logger.Warn("send auth failed", "error", err)
	}
}

func (m *Manager) lost(gen uint64, err error) {
	if gen != m.gen || m.stopped {
		return
	}
	m.closed(err)
}

// closed handles the end of the socket.
func (m *Manager) closed(err error) {
	m.dropClient()

	if m.state.Terminal() {
		m.logger.Info("socket closed in terminal state", "state", m.state, "error", err)
		return
	}

	m.logger.Info("connection closed", "attempt", m.attempt, "error", err)
	m.setState(StateClosed)
	m.emitDisconnect()
	if m.supervisor != nil {
		m.supervisor.Start()
	}
}

// dropClient closes the socket without emitting anything.
func (m *Manager) dropClient() {
	m.gen++
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

func (m *Manager) send(cmd wire.Command) error {
	if m.client == nil {
		return ErrNotConnected
	}
	data, err := wire.Encode(cmd)
	if err != nil {
		return err
	}
	if err := m.client.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.CommandType(), err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Message handling
// -----------------------------------------------------------------------------

func (m *Manager) receive(gen uint64, msg TimestampedMessage) {
	if gen != m.gen || m.stopped {
		return
	}

	in, err := wire.Decode(msg.Data)
	if err != nil {
		m.logger.Warn("ignoring malformed message", "error", err)
		return
	}

	if in.Type.IsError() {
		m.logger.Error("relay error", "type", in.Type, "args", string(in.Args))
	}

	// Handshake replies are stamped at send time, after history this
	// socket has not received yet, so they never move the resume point.
	// Neither does a message dropped in the wrong state.
	if m.dispatch(in) && in.Timestamp != nil && !in.Type.IsHandshake() {
		ts := *in.Timestamp
		m.lastSeen = &ts
	}

	for _, fn := range m.messageSubs {
		fn(in)
	}
}

// dispatch routes a message by type. It reports whether the message's
// timestamp counts toward the resume point.
func (m *Manager) dispatch(in wire.Inbound) bool {
	switch msg := in.Message.(type) {
	case wire.AuthAck:
		if !m.expect(in, StateAuthenticating) {
			return false
		}
		m.setState(StateJoining)
		join := wire.Join{ID: m.cfg.RoomID, Timestamp: m.lastSeen}
		if err := m.send(join); err != nil {
			m.logger.Warn("send join failed", "error", err)
		}
		return true

	case wire.AuthErr:
		if !m.expect(in, StateAuthenticating) {
			return false
		}
		m.setState(StateAuthError)
		return true

	case wire.JoinAck:
		if !m.expect(in, StateJoining) {
			return false
		}
		m.setState(StateJoined)
		return true

	case wire.JoinErr:
		if !m.expect(in, StateJoining) {
			return false
		}
		m.setState(StateJoinError)
		return true

	case wire.StaleStateErr:
		// The relay answers a join whose resume point it no longer retains.
		if !m.expect(in, StateJoining, StateJoined) {
			return false
		}
		m.lastSeen = nil
		m.dropClient()
		m.setState(StateStaleStateError)
		m.emitDisconnect()
		m.emitRecover(Recovery{Reason: RecoveryStaleState})
		return false

	case wire.StateChange:
		if !m.expect(in, StateJoined) {
			return false
		}
		if m.handler != nil {
			m.handler.Handle(msg.Args)
		}
		return true

	case wire.Control:
		if !m.expect(in, StateJoined) {
			return false
		}
		for _, fn := range m.controlSubs {
			fn(msg.Playback)
		}
		return true

	case wire.Unknown:
		m.logger.Debug("unhandled message type", "type", msg.Type)
	}
	return true
}

// expect reports whether the current state is one of states, logging a
// protocol error when it is not.
func (m *Manager) expect(in wire.Inbound, states ...State) bool {
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	m.logger.Warn("ignoring message",
		"error", fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, in.Type, m.state),
	)
	return false
}

func (m *Manager) setState(s State) {
	m.state = s
	m.logger.Info("connection state", "state", s)
	for _, fn := range m.statusSubs {
		fn(s)
	}
}

func (m *Manager) emitDisconnect() {
	for _, fn := range m.disconnectSubs {
		fn()
	}
}

func (m *Manager) emitRecover(r Recovery) {
	m.logger.Info("recovery", "reason", r.Reason)
	for _, fn := range m.recoverSubs {
		fn(r)
	}
}
