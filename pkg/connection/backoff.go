package connection

import (
	"errors"
	"sync"
	"time"
)

// Backoff constants for the serial reopen loop.
const (
	// InitialBackoff is the default delay after the first failure.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps the delay between attempts.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the factor by which the delay grows.
	BackoffMultiplier = 2.0
)

// ErrRetriesExhausted is returned by Next once the overall retry deadline
// has passed.
var ErrRetriesExhausted = errors.New("reconnect deadline exceeded")

// Backoff calculates exponential reopen delays. Delays double from the
// initial value up to MaxBackoff; an optional total budget bounds how long
// the loop may keep retrying.
type Backoff struct {
	mu sync.Mutex

	current time.Duration

	initial time.Duration
	max     time.Duration
	total   time.Duration // 0 means retry forever

	attempts int
	started  time.Time
}

// Config allows customizing backoff parameters.
type Config struct {
	// Initial is the delay after the first failure.
	Initial time.Duration
	// Max caps the per-attempt delay.
	Max time.Duration
	// Total bounds the elapsed retry time; zero retries forever.
	Total time.Duration
}

// NewBackoff creates a backoff calculator with default settings and no
// overall deadline.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(Config{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg Config) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	return &Backoff{
		current: cfg.Initial,
		initial: cfg.Initial,
		max:     cfg.Max,
		total:   cfg.Total,
	}
}

// Next returns the delay to wait before the upcoming attempt and advances
// the backoff. It returns ErrRetriesExhausted once the overall deadline has
// passed; the deadline clock starts at the first Next after a Reset.
func (b *Backoff) Next() (time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.started.IsZero() {
		b.started = now
	}
	if b.total > 0 && now.Sub(b.started) >= b.total {
		return 0, ErrRetriesExhausted
	}

	delay := b.current

	b.attempts++
	next := time.Duration(float64(b.current) * BackoffMultiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay, nil
}

// Peek returns the upcoming delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Reset restores the initial delay and restarts the deadline clock.
// Call this after a successful open.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
	b.started = time.Time{}
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Sequence returns the base delay progression from the defaults up to the
// cap.
func Sequence() []time.Duration {
	return []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // max
	}
}
