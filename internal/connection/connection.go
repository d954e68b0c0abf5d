// Package connection owns the link to the table store backing: dialing with
// bounded retries, health checks and the observable connectivity flag.
package connection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"blockguess/internal/alert"
	"blockguess/internal/logger"
	"blockguess/internal/store"

	"github.com/jonboulle/clockwork"
)

// ErrDisconnected is returned once all connection attempts are exhausted.
var ErrDisconnected = errors.New("store disconnected")

// Dialer opens the store backing.
type Dialer func(ctx context.Context) (store.Store, error)

// Config controls retries. The wait before retry n is n*BaseDelay.
type Config struct {
	MaxRetries     int
	BaseDelay      time.Duration
	HealthInterval time.Duration
}

// DefaultConfig mirrors the reference behaviour: three retries, one second base.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		HealthInterval: 30 * time.Second,
	}
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }
func WithLogger(l *logger.Logger) Option { return func(m *Manager) { m.log = l } }
func WithAlerter(a alert.Alerter) Option { return func(m *Manager) { m.alert = a } }

// Manager establishes the store on first use and tracks connectivity.
type Manager struct {
	dial  Dialer
	cfg   Config
	clock clockwork.Clock
	log   *logger.Logger
	alert alert.Alerter

	dialMu sync.Mutex // one dial sequence at a time

	mu        sync.RWMutex
	st        store.Store
	connected bool
	obsSeq    uint64
	observers map[uint64]func(bool)
	obsOrder  []uint64
}

// New creates a manager. Nothing is dialed until Store or Connect is called.
func New(dial Dialer, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		dial:      dial,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		log:       logger.Nop(),
		observers: map[uint64]func(bool){},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxRetries < 0 {
		m.cfg.MaxRetries = 0
	}
	return m
}

// Store returns the connected store, dialing it on first use.
func (m *Manager) Store(ctx context.Context) (store.Store, error) {
	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()
	if st != nil {
		return st, nil
	}
	return m.Connect(ctx)
}

// Connect dials with up to MaxRetries retries. When every attempt fails the
// manager stays disconnected and ErrDisconnected is returned.
func (m *Manager) Connect(ctx context.Context) (store.Store, error) {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()
	if st != nil {
		return st, nil
	}

	var lastErr error
	err := m.retry(ctx, "dial", func(ctx context.Context) error {
		s, err := m.dial(ctx)
		if err != nil {
			lastErr = err
			return err
		}
		st = s
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			m.raise(ctx, "store unreachable", fmt.Sprintf("gave up after %d attempts: %v", m.cfg.MaxRetries+1, lastErr))
		}
		return nil, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
	m.setConnected(true)
	return st, nil
}

// retry runs fn until it succeeds or MaxRetries retries have failed,
// waiting attempt*BaseDelay between attempts.
func (m *Manager) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= m.cfg.MaxRetries+1; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				m.log.Infof("%s succeeded on attempt %d", op, attempt)
			}
			return nil
		}
		m.log.Warnf("%s attempt %d/%d failed: %v", op, attempt, m.cfg.MaxRetries+1, err)
		if attempt > m.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(time.Duration(attempt) * m.cfg.BaseDelay):
		}
	}
	return err
}

// Run watches the store health until ctx is done. A failed ping marks the
// manager disconnected and pings are retried with the same backoff; after
// the retries are exhausted the check resumes on the next interval.
func (m *Manager) Run(ctx context.Context) error {
	if _, err := m.Store(ctx); err != nil && ctx.Err() == nil {
		m.log.Errorf("initial connect: %v", err)
	}

	interval := m.cfg.HealthInterval
	if interval <= 0 {
		interval = DefaultConfig().HealthInterval
	}
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			m.check(ctx)
		}
	}
}

func (m *Manager) check(ctx context.Context) {
	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()
	if st == nil {
		if _, err := m.Connect(ctx); err != nil {
			m.log.Errorf("reconnect: %v", err)
		}
		return
	}

	err := st.Ping(ctx)
	if err == nil {
		m.setConnected(true)
		return
	}
	m.log.Warnf("store ping failed: %v", err)
	m.setConnected(false)

	err = m.retry(ctx, "ping", st.Ping)
	if err == nil {
		m.setConnected(true)
		return
	}
	if ctx.Err() == nil {
		m.raise(ctx, "store unreachable", fmt.Sprintf("health check failing: %v", err))
	}
}

// Connected reports the current connectivity.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Observe registers fn to be called with every connectivity change. The
// returned function deregisters it and may be called more than once.
func (m *Manager) Observe(fn func(connected bool)) func() {
	m.mu.Lock()
	m.obsSeq++
	id := m.obsSeq
	m.observers[id] = fn
	m.obsOrder = append(m.obsOrder, id)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.observers[id]; !ok {
			return
		}
		delete(m.observers, id)
		m.obsOrder = slices.DeleteFunc(m.obsOrder, func(o uint64) bool { return o == id })
	}
}

// WaitConnected blocks until a store has been dialed successfully, by Run or
// any other caller, or ctx is done. It never dials itself.
func (m *Manager) WaitConnected(ctx context.Context) (store.Store, error) {
	ready := make(chan struct{}, 1)
	unsubscribe := m.Observe(func(connected bool) {
		if connected {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	for {
		m.mu.RLock()
		st := m.st
		m.mu.RUnlock()
		if st != nil {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ready:
		}
	}
}

func (m *Manager) setConnected(v bool) {
	m.mu.Lock()
	if m.connected == v {
		m.mu.Unlock()
		return
	}
	m.connected = v
	var fns []func(bool)
	for _, id := range m.obsOrder {
		if fn, ok := m.observers[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	m.log.Infof("store connected=%t", v)
	for _, fn := range fns {
		fn(v)
	}
}

func (m *Manager) raise(ctx context.Context, subject, detail string) {
	if m.alert == nil {
		return
	}
	if err := m.alert.Alert(ctx, subject, detail); err != nil {
		m.log.Errorf("alert %q: %v", subject, err)
	}
}

// Close closes the store and marks the manager disconnected. A later Store
// call dials again.
func (m *Manager) Close() error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	st := m.st
	m.st = nil
	m.mu.Unlock()

	m.setConnected(false)
	if st == nil {
		return nil
	}
	return st.Close()
}
