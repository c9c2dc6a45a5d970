// Package relaytest provides an in-process relay speaking the room sync
// protocol, for tests and local runs.
//
// The relay serves three endpoints on one httptest server:
//
//	/sock          websocket: auth, join, catch-up, state and control broadcasts
//	/state/{room}  room snapshot: {"timestamp": [ms, seq], "roots": {...}}
//	/              status; 503 while the relay is marked down
//
// Every broadcast is stamped with a clock.Clock and kept in a per-room log
// so a rejoining client can catch up from its last timestamp. A resume point
// older than the log age gets stale-state-err.
package relaytest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rickgao/roomsync/internal/applier"
	"github.com/rickgao/roomsync/internal/clock"
	"github.com/rickgao/roomsync/internal/model"
	"github.com/rickgao/roomsync/internal/wire"
)

// Errors
var (
	ErrUnknownRoom = errors.New("unknown room")
	ErrRoomExists  = errors.New("room already exists")
)

// DefaultLogAge is how long broadcasts stay available for catch-up.
const DefaultLogAge = 5 * time.Minute

// Relay is a fake relay server.
type Relay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	clock    *clock.Clock
	now      func() time.Time
	logAge   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	keys    map[string]string // user id -> socket key; empty accepts anyone
	rooms   map[string]*room
	sockets map[uuid.UUID]*socket
	down    bool
	inbound []wire.Envelope
}

type room struct {
	name     string
	registry *applier.Registry
	applier  *applier.Applier
	log      []entry
	members  map[uuid.UUID]*socket
	ctrl     *wire.PlaybackControl
	muted    bool
}

type entry struct {
	ts    clock.Timestamp
	frame []byte
}

type socket struct {
	id     uuid.UUID
	conn   *websocket.Conn
	out    *outbox
	userID string
	authed bool
	room   *room
}

// Option configures a Relay.
type Option func(*Relay)

// WithKeys restricts auth to the given user id to key pairs.
func WithKeys(keys map[string]string) Option {
	return func(r *Relay) {
		for id, k := range keys {
			r.keys[id] = k
		}
	}
}

// WithLogAge sets how long broadcasts remain available for catch-up.
func WithLogAge(d time.Duration) Option {
	return func(r *Relay) {
		r.logAge = d
	}
}

// WithNow overrides the relay's wall clock.
func WithNow(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// New starts a relay. Call Close when done.
func New(opts ...Option) *Relay {
	r := &Relay{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:     time.Now,
		logAge:  DefaultLogAge,
		logger:  slog.Default(),
		keys:    make(map[string]string),
		rooms:   make(map[string]*room),
		sockets: make(map[uuid.UUID]*socket),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "relaytest")
	r.clock = clock.New(clock.WithNow(r.now))

	router := mux.NewRouter()
	router.HandleFunc("/sock", r.handleSocket)
	router.HandleFunc("/state/{room}", r.handleSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/", r.handleStatus).Methods(http.MethodGet, http.MethodHead)
	r.server = httptest.NewServer(router)

	return r
}

// URL returns the websocket URL.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http") + "/sock"
}

// Origin returns the HTTP base URL.
func (r *Relay) Origin() string {
	return r.server.URL
}

// Close disconnects every socket and stops the server.
func (r *Relay) Close() {
	r.DropAll()
	r.server.Close()
}

// -----------------------------------------------------------------------------
// Rooms
// -----------------------------------------------------------------------------

// AddRoom creates a room whose roots follow model.DefaultRoots, seeded from
// roots (missing names start empty).
func (r *Relay) AddRoom(name string, roots map[string]json.RawMessage) error {
	registry := applier.NewRegistry()
	for _, spec := range model.DefaultRoots {
		node, err := model.DecodeRoot(spec, roots[spec.Name])
		if err != nil {
			return err
		}
		registry.Register(spec.Name, node)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[name]; ok {
		return fmt.Errorf("%w: %s", ErrRoomExists, name)
	}
	r.rooms[name] = &room{
		name:     name,
		registry: registry,
		applier:  applier.New(registry, r.logger),
		members:  make(map[uuid.UUID]*socket),
	}
	return nil
}

// Publish applies op to the room's trees and broadcasts it to members.
func (r *Relay) Publish(roomName string, op applier.Operation) (clock.Timestamp, error) {
	args, err := json.Marshal(op)
	if err != nil {
		return clock.Timestamp{}, fmt.Errorf("marshal operation: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return clock.Timestamp{}, fmt.Errorf("%w: %s", ErrUnknownRoom, roomName)
	}
	if err := rm.applier.Apply(op); err != nil {
		return clock.Timestamp{}, err
	}

	ts := r.clock.Next()
	frame, err := encodeFrame(wire.TypeState, args, &ts)
	if err != nil {
		return clock.Timestamp{}, err
	}
	rm.log = append(rm.log, entry{ts: ts, frame: frame})
	r.pruneLocked(rm)
	r.broadcastLocked(rm, frame)
	return ts, nil
}

// Roots returns snapshots of the room's trees.
func (r *Relay) Roots(roomName string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, roomName)
	}
	return snapshotRoots(rm), nil
}

// Members returns the number of sockets joined to a room.
func (r *Relay) Members(roomName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomName]; ok {
		return len(rm.members)
	}
	return 0
}

// WaitMembers blocks until the room has n members or timeout elapses.
func (r *Relay) WaitMembers(roomName string, n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for r.Members(roomName) != n {
		if time.Now().After(deadline) {
			return fmt.Errorf("room %s has %d members, want %d", roomName, r.Members(roomName), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// Inbound returns every frame received from clients, in order.
func (r *Relay) Inbound() []wire.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.Envelope(nil), r.inbound...)
}

// SetDown marks the relay down: sockets are closed, upgrades and status
// checks fail with 503 until SetDown(false).
func (r *Relay) SetDown(down bool) {
	r.mu.Lock()
	r.down = down
	r.mu.Unlock()
	if down {
		r.DropAll()
	}
}

// DropAll closes every socket.
func (r *Relay) DropAll() {
	r.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(r.sockets))
	for _, s := range r.sockets {
		conns = append(conns, s.conn)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// pruneLocked drops log entries older than the log age.
func (r *Relay) pruneLocked(rm *room) {
	cutoff := r.now().Add(-r.logAge).UnixMilli()
	i := sort.Search(len(rm.log), func(i int) bool { return rm.log[i].ts.Millis > cutoff })
	rm.log = rm.log[i:]
}

func (r *Relay) broadcastLocked(rm *room, frame []byte) {
	for _, s := range rm.members {
		if !s.send(frame) {
			r.logger.Debug("broadcast dropped, socket closing", "socket", s.id)
		}
	}
}

func snapshotRoots(rm *room) map[string]any {
	out := make(map[string]any)
	for _, name := range rm.registry.Names() {
		node, _ := rm.registry.Lookup(name)
		out[name] = model.Snapshot(node)
	}
	return out
}

// -----------------------------------------------------------------------------
// HTTP handlers
// -----------------------------------------------------------------------------

func (r *Relay) isDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *Relay) handleStatus(w http.ResponseWriter, req *http.Request) {
	if r.isDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (r *Relay) handleSnapshot(w http.ResponseWriter, req *http.Request) {
	if r.isDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	name := mux.Vars(req)["room"]

	r.mu.Lock()
	rm, ok := r.rooms[name]
	var body []byte
	var err error
	if ok {
		// The trees reflect every broadcast stamped so far.
		body, err = json.Marshal(map[string]any{
			"timestamp": r.clock.Next(),
			"roots":     snapshotRoots(rm),
		})
	}
	r.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, `{"error":"unknown room"}`, http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func (r *Relay) handleSocket(w http.ResponseWriter, req *http.Request) {
	if r.isDown() {
		http.Error(w, "relay down", http.StatusServiceUnavailable)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Debug("upgrade failed", "error", err)
		return
	}

	s := &socket{id: uuid.New(), conn: conn, out: newOutbox(16)}
	r.mu.Lock()
	r.sockets[s.id] = s
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.out.drain(conn)
	}()

	defer func() {
		r.mu.Lock()
		delete(r.sockets, s.id)
		if s.room != nil {
			delete(s.room.members, s.id)
		}
		r.mu.Unlock()
		s.out.close()
		<-done
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r.handleFrame(s, data)
	}
}
