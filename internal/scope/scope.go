// Package scope serializes mutations per user.
//
// Manager.Do runs fn while holding an exclusive critical section keyed by a
// user id. Callers for the same user run one at a time; callers for
// different users never wait on each other.
//
// Each key maps to a one-slot semaphore (a buffered channel) plus a
// reference count. The entry is created on first use and dropped when the
// last caller that referenced it leaves, so the map only holds users with a
// mutation in flight or waiting. Waiting on a channel instead of a
// sync.Mutex lets acquisition honor context cancellation and a timeout.
package scope

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/metrics"
)

var (
	// ErrAcquireTimeout is returned when the scope could not be entered
	// before the acquire timeout or the caller's deadline.
	ErrAcquireTimeout = errors.New("scope: acquire timeout")
	// ErrClosed is returned by Do after Close.
	ErrClosed = errors.New("scope: manager closed")
)

type Config struct {
	// AcquireTimeout bounds the wait to enter a scope. Zero waits as long as
	// the caller's context allows.
	AcquireTimeout time.Duration
}

type entry struct {
	sem  chan struct{}
	refs int
}

type Manager struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	entries  map[string]*entry
	closed   bool
	inflight sync.WaitGroup
}

// New creates a Manager. logger and m may be nil.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		entries: make(map[string]*entry),
	}
}

// Do runs fn inside userID's critical section. fn receives ctx unchanged.
//
// Do is not reentrant: calling Do for the same user from inside fn blocks
// until the acquire timeout fires.
func (m *Manager) Do(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	e, err := m.ref(userID)
	if err != nil {
		return err
	}
	defer m.unref(userID, e)

	waitCtx := ctx
	if m.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	select {
	case e.sem <- struct{}{}:
	case <-waitCtx.Done():
		m.logger.Warn("scope acquire timed out",
			zap.String("userId", userID),
			zap.Duration("waited", time.Since(start)),
		)
		return fmt.Errorf("%w for user %s: %w", ErrAcquireTimeout, userID, waitCtx.Err())
	}
	m.metrics.ObserveScopeWait(time.Since(start))
	defer func() { <-e.sem }()

	return fn(ctx)
}

func (m *Manager) ref(userID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	e, ok := m.entries[userID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[userID] = e
	}
	e.refs++
	m.inflight.Add(1)
	m.metrics.SetActiveScopes(len(m.entries))
	return e, nil
}

func (m *Manager) unref(userID string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, userID)
	}
	m.metrics.SetActiveScopes(len(m.entries))
	m.mu.Unlock()

	m.inflight.Done()
}

// Active returns the number of users with a caller inside or waiting.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close rejects new callers and waits for the ones already admitted.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.inflight.Wait()
	m.logger.Info("scope manager closed")
}
