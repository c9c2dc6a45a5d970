package clock

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultQuiescence is the idle gap after which the sequence resets.
const DefaultQuiescence = 2 * time.Millisecond

// ErrMalformedTimestamp is returned when a wire timestamp is not a [millis, seq] pair.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Timestamp orders emitted events. Encoded on the wire as [millis, seq].
type Timestamp struct {
	Millis int64 // Wall-clock milliseconds since Unix epoch
	Seq    int64 // Sequence within the current burst of calls
}

// Compare returns -1, 0 or +1 comparing t to o lexicographically.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Millis < o.Millis:
		return -1
	case t.Millis > o.Millis:
		return 1
	case t.Seq < o.Seq:
		return -1
	case t.Seq > o.Seq:
		return 1
	}
	return 0
}

// Before reports whether t sorts strictly before o.
func (t Timestamp) Before(o Timestamp) bool {
	return t.Compare(o) < 0
}

// IsZero reports whether t is the zero timestamp.
func (t Timestamp) IsZero() bool {
	return t.Millis == 0 && t.Seq == 0
}

// Time returns the wall-clock component.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(t.Millis)
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d", t.Millis, t.Seq)
}

// MarshalJSON encodes the timestamp as a two-element array.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{t.Millis, t.Seq})
}

// UnmarshalJSON decodes a two-element numeric array.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var pair []json.Number
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTimestamp, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: want 2 elements, got %d", ErrMalformedTimestamp, len(pair))
	}
	millis, err := pair[0].Int64()
	if err != nil {
		return fmt.Errorf("%w: millis: %v", ErrMalformedTimestamp, err)
	}
	seq, err := pair[1].Int64()
	if err != nil {
		return fmt.Errorf("%w: seq: %v", ErrMalformedTimestamp, err)
	}
	t.Millis, t.Seq = millis, seq
	return nil
}

// AfterFunc schedules fn after d and returns a stop function.
type AfterFunc func(d time.Duration, fn func()) (stop func() bool)

// Clock produces strictly increasing timestamps without persisted state.
type Clock struct {
	now        func() time.Time
	afterFunc  AfterFunc
	quiescence time.Duration

	mu    sync.Mutex
	count int64
	gen   uint64
	stop  func() bool
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the wall-clock source.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) {
		c.now = now
	}
}

// WithAfterFunc overrides the reset timer.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Clock) {
		c.afterFunc = f
	}
}

// WithQuiescence sets the idle gap before the sequence resets.
func WithQuiescence(d time.Duration) Option {
	return func(c *Clock) {
		c.quiescence = d
	}
}

// New creates a Clock.
func New(opts ...Option) *Clock {
	c := &Clock{
		now: time.Now,
		afterFunc: func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		},
		quiescence: DefaultQuiescence,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next returns a timestamp greater than every prior result of this Clock.
func (c *Clock) Next() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := Timestamp{Millis: c.now().UnixMilli(), Seq: c.count}
	c.count++

	if c.stop != nil {
		c.stop()
	}
	c.gen++
	gen := c.gen
	c.stop = c.afterFunc(c.quiescence, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// A call made after this timer was armed owns the counter now.
		if c.gen == gen {
			c.count = 0
			c.stop = nil
		}
	})

	return ts
}

// Reset zeroes the sequence counter.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.gen++
	c.count = 0
}
