// Package coordinator runs a fixed-interval polling loop and tracks the
// outcome of each tick.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrAuthFailed marks a tick failure that needs new credentials.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrUpdateFailed marks a transient tick failure.
	ErrUpdateFailed = errors.New("update failed")
	// ErrNotReady is returned by Refresh until Setup has succeeded.
	ErrNotReady = errors.New("setup has not completed")
)

// AuthFailed wraps err as a terminal authentication failure.
func AuthFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrAuthFailed, err)
}

// UpdateFailed wraps err as a transient failure.
func UpdateFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
}

type State int

const (
	Uninitialized State = iota
	Ready
	AuthFailedState
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case AuthFailedState:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Options configures a Coordinator.
type Options[T any] struct {
	Name     string
	Interval time.Duration
	Logger   zerolog.Logger
	Setup    func(ctx context.Context) error
	Update   func(ctx context.Context) (T, error)
	Now      func() time.Time
}

// Coordinator owns the latest value produced by Update.
type Coordinator[T any] struct {
	name     string
	interval time.Duration
	log      zerolog.Logger
	setup    func(ctx context.Context) error
	update   func(ctx context.Context) (T, error)
	now      func() time.Time

	tickMu sync.Mutex
	data   atomic.Pointer[T]

	mu            sync.RWMutex
	setupDone     bool
	state         State
	lastErr       error
	lastSuccess   bool
	lastSuccessAt time.Time
	listeners     map[int]func()
	nextListener  int
}

func New[T any](opts Options[T]) *Coordinator[T] {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Setup == nil {
		opts.Setup = func(context.Context) error { return nil }
	}
	return &Coordinator[T]{
		name:      opts.Name,
		interval:  opts.Interval,
		log:       opts.Logger.With().Str("coordinator", opts.Name).Logger(),
		setup:     opts.Setup,
		update:    opts.Update,
		now:       opts.Now,
		listeners: make(map[int]func()),
	}
}

func (c *Coordinator[T]) Name() string {
	return c.name
}

func (c *Coordinator[T]) Interval() time.Duration {
	return c.interval
}

// FirstRefresh runs Setup, unless it already succeeded, and then a single
// tick. A Setup failure is returned. A failed tick is returned only when it
// is an authentication failure; transient failures are recorded and left
// for the next tick.
func (c *Coordinator[T]) FirstRefresh(ctx context.Context) error {
	if !c.SetupDone() {
		if err := c.setup(ctx); err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.lastSuccess = false
			if errors.Is(err, ErrAuthFailed) {
				c.state = AuthFailedState
			}
			c.mu.Unlock()
			return fmt.Errorf("%s setup: %w", c.name, err)
		}
		c.mu.Lock()
		c.setupDone = true
		c.mu.Unlock()
	}
	if err := c.Refresh(ctx); err != nil && errors.Is(err, ErrAuthFailed) {
		return fmt.Errorf("%s first refresh: %w", c.name, err)
	}
	return nil
}

// Run ticks at the fixed interval until ctx is done or authentication fails.
// Until Setup succeeds each tick retries FirstRefresh instead.
func (c *Coordinator[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if c.State() == AuthFailedState {
			c.log.Warn().Msg("authentication failed; polling stopped until reconfigured")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.SetupDone() {
				if err := c.FirstRefresh(ctx); err != nil {
					c.log.Warn().Err(err).Msg("setup retry failed")
				}
				continue
			}
			_ = c.Refresh(ctx)
		}
	}
}

// SetupDone reports whether Setup has succeeded.
func (c *Coordinator[T]) SetupDone() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.setupDone
}

// Refresh runs one tick. Concurrent callers are serialized.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if c.State() == AuthFailedState {
		return c.LastError()
	}
	if !c.SetupDone() {
		return fmt.Errorf("%s: %w", c.name, ErrNotReady)
	}

	value, err := c.update(ctx)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		c.lastSuccess = false
		switch {
		case errors.Is(err, ErrAuthFailed):
			c.state = AuthFailedState
			c.log.Error().Err(err).Msg("authentication failed")
		case errors.Is(err, ErrUpdateFailed):
			c.log.Warn().Err(err).Msg("update failed")
		default:
			c.log.Error().Err(err).Msg("unexpected error during update")
		}
	} else {
		c.data.Store(&value)
		c.state = Ready
		c.lastErr = nil
		c.lastSuccess = true
		c.lastSuccessAt = c.now()
	}
	listeners := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return err
}

// Data returns the last successful value.
func (c *Coordinator[T]) Data() (T, bool) {
	ptr := c.data.Load()
	if ptr == nil {
		var zero T
		return zero, false
	}
	return *ptr, true
}

func (c *Coordinator[T]) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator[T]) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

func (c *Coordinator[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Coordinator[T]) LastSuccessAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccessAt
}

// AddListener registers fn to run after every tick and returns a func that
// removes it.
func (c *Coordinator[T]) AddListener(fn func()) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}
