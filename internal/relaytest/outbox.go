package relaytest

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// outbox is an unbounded FIFO of frames for one socket. The relay pushes
// while holding its lock and a writer goroutine pops, so a slow socket
// never stalls the room. The ring doubles when full.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   [][]byte
	head   int
	count  int
	closed bool
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	o := &outbox{ring: make([][]byte, capacity)}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// push queues a frame. It reports false once the outbox is closed.
func (o *outbox) push(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	if o.count == len(o.ring) {
		o.grow()
	}
	o.ring[(o.head+o.count)%len(o.ring)] = frame
	o.count++
	o.cond.Signal()
	return true
}

// pop blocks for the next frame. ok is false when closed and empty.
func (o *outbox) pop() (frame []byte, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.count == 0 && !o.closed {
		o.cond.Wait()
	}
	if o.count == 0 {
		return nil, false
	}

	frame = o.ring[o.head]
	o.ring[o.head] = nil
	o.head = (o.head + 1) % len(o.ring)
	o.count--
	return frame, true
}

// close stops accepting frames. Queued frames can still be popped.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.cond.Broadcast()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// grow doubles the ring and unwraps it. Must be called with mu held.
func (o *outbox) grow() {
	ring := make([][]byte, 2*len(o.ring))
	n := copy(ring, o.ring[o.head:])
	copy(ring[n:], o.ring[:o.head])
	o.ring = ring
	o.head = 0
}

// drain writes queued frames to conn until the outbox closes or a write
// fails. A failed write closes conn so the read loop ends too.
func (o *outbox) drain(conn *websocket.Conn) {
	for {
		frame, ok := o.pop()
		if !ok {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			o.close()
			conn.Close()
			return
		}
	}
}
