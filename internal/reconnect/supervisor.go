// Package reconnect polls the relay's origin after a disconnect and signals
// when it is reachable again.
//
// The first check fires after a random delay in [0, InitialJitter) so a
// crowd of clients does not hit a restarting server at once. Every failed
// check is retried after RetryInterval, indefinitely. A successful check
// emits exactly one recovery signal and stops.
package reconnect

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rickgao/roomsync/internal/loop"
)

// Checker performs one liveness check. A nil error means the server is up.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Config configures a Supervisor.
type Config struct {
	InitialJitter time.Duration // Upper bound of the random first delay
	RetryInterval time.Duration // Delay after each failed check
	CheckTimeout  time.Duration // Timeout of one check
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialJitter: 1000 * time.Millisecond,
		RetryInterval: 1000 * time.Millisecond,
		CheckTimeout:  5 * time.Second,
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRand replaces the [0, 1) source used for the first delay.
func WithRand(f func() float64) Option {
	return func(s *Supervisor) {
		s.rand = f
	}
}

// WithBackOff replaces the retry policy.
func WithBackOff(b backoff.BackOff) Option {
	return func(s *Supervisor) {
		s.backoff = b
	}
}

// Supervisor schedules liveness checks on the loop. Start and Stop must be
// called on the loop.
type Supervisor struct {
	cfg       Config
	sched     loop.Scheduler
	checker   Checker
	onRecover func()
	rand      func() float64
	backoff   backoff.BackOff
	logger    *slog.Logger

	// Loop-owned state
	gen         uint64
	running     bool
	attempts    int
	task        *loop.Task
	cancelCheck context.CancelFunc
}

// New creates a Supervisor. onRecover runs on the loop.
func New(cfg Config, sched loop.Scheduler, checker Checker, onRecover func(), logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		cfg:       cfg,
		sched:     sched,
		checker:   checker,
		onRecover: onRecover,
		rand:      rand.Float64,
		backoff:   backoff.NewConstantBackOff(cfg.RetryInterval),
		logger:    logger.With("component", "reconnect"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start cancels any pending check and schedules a new first check.
func (s *Supervisor) Start() {
	s.Stop()

	s.running = true
	s.attempts = 0
	s.backoff.Reset()

	delay := time.Duration(s.rand() * float64(s.cfg.InitialJitter))
	s.logger.Info("scheduling liveness check", "delay", delay)
	s.schedule(delay)
}

// Stop cancels pending and in-flight checks.
func (s *Supervisor) Stop() {
	s.gen++
	s.running = false
	s.task.Cancel()
	s.task = nil
	if s.cancelCheck != nil {
		s.cancelCheck()
		s.cancelCheck = nil
	}
}

// Running reports whether the supervisor is waiting for recovery.
func (s *Supervisor) Running() bool {
	return s.running
}

// Attempts returns the number of checks started since Start.
func (s *Supervisor) Attempts() int {
	return s.attempts
}

func (s *Supervisor) schedule(delay time.Duration) {
	gen := s.gen
	s.task = s.sched.AfterFunc(delay, func() { s.check(gen) })
}

// check runs one liveness request off the loop.
func (s *Supervisor) check(gen uint64) {
	if gen != s.gen || !s.running {
		return
	}
	s.attempts++

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CheckTimeout)
	s.cancelCheck = cancel

	go func() {
		err := s.checker.Check(ctx)
		cancel()
		s.sched.Post(func() { s.checked(gen, err) })
	}()
}

func (s *Supervisor) checked(gen uint64, err error) {
	if gen != s.gen || !s.running {
		return
	}
	s.cancelCheck = nil

	if err == nil {
		s.logger.Info("relay is up", "attempts", s.attempts)
		s.running = false
		s.gen++
		if s.onRecover != nil {
			s.onRecover()
		}
		return
	}

	wait := s.backoff.NextBackOff()
	if wait == backoff.Stop {
		s.logger.Warn("giving up on liveness checks", "attempts", s.attempts, "error", err)
		s.running = false
		return
	}
	s.logger.Debug("liveness check failed", "error", err, "retry_in", wait)
	s.schedule(wait)
}
