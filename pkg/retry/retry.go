// Package retry provides exponential backoff for transient failures: bounded retries of a
// single operation with Do, and an unbounded delay sequence for reconnect loops with Backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (0 = run once); ignored by Backoff
	InitialDelay time.Duration // Initial delay between attempts
	MaxDelay     time.Duration // Maximum delay between attempts
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	AddJitter    bool          // Add up to 25% randomness to each delay
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Reconnect returns the delay policy used by persistent connections.
func Reconnect() Config {
	return Config{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

func (c Config) normalize() (Config, error) {
	if c.InitialDelay < 0 {
		return c, errors.New("retry: InitialDelay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return c, errors.New("retry: MaxDelay cannot be negative")
	}
	if c.Multiplier < 0 {
		return c, errors.New("retry: Multiplier cannot be negative")
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

func (c Config) jitter(delay time.Duration) time.Duration {
	if !c.AddJitter || delay < 4 {
		return delay
	}
	randMu.Lock()
	j := time.Duration(randSource.Int63n(int64(delay / 4)))
	randMu.Unlock()
	return delay + j
}

func (c Config) grow(delay time.Duration) time.Duration {
	next := float64(delay) * c.Multiplier
	if next > float64(c.MaxDelay) || next > float64(time.Duration(1<<63-1)) {
		return c.MaxDelay
	}
	return time.Duration(next)
}

// Do executes fn with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.jitter(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		delay = cfg.grow(delay)
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

// Backoff produces an unbounded sequence of growing delays. It is not safe for
// concurrent use; each run loop owns its own Backoff.
type Backoff struct {
	cfg      Config
	next     time.Duration
	attempts int
}

// NewBackoff creates a Backoff from cfg. MaxAttempts is ignored.
func NewBackoff(cfg Config) (*Backoff, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Backoff{cfg: cfg, next: cfg.InitialDelay}, nil
}

// Next returns the delay to wait before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.cfg.jitter(b.next)
	b.next = b.cfg.grow(b.next)
	b.attempts++
	return d
}

// Attempts reports how many delays have been handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset starts the sequence over, typically after a successful connection.
func (b *Backoff) Reset() {
	b.next = b.cfg.InitialDelay
	b.attempts = 0
}

// Wait blocks for the next backoff delay on clock, returning early with the
// context error when ctx is cancelled.
func (b *Backoff) Wait(ctx context.Context, clock clockwork.Clock) error {
	timer := clock.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
