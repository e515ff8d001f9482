package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/domain"
	"github.com/rs/zerolog/log"
)

// Mode decides what happens when a tenant cannot be reached.
type Mode int

const (
	// ModeStrict treats an unreachable tenant as fatal.
	ModeStrict Mode = iota
	// ModePermissive serves a no-op handle and retries later.
	ModePermissive
)

func (m Mode) String() string {
	if m == ModePermissive {
		return config.ModePermissive
	}
	return config.ModeStrict
}

// Handle states reported by Status.
const (
	StateConnected    = "connected"
	StateDegraded     = "degraded"
	StateDisconnected = "disconnected"
)

// Options tunes connect behaviour. Zero hooks fall back to the defaults.
type Options struct {
	Mode          Mode
	Attempts      int
	BackoffBase   time.Duration
	BackoffJitter time.Duration
	// PingTimeout bounds the liveness probe and doubles as the
	// server-selection budget.
	PingTimeout   time.Duration
	DegradedRetry time.Duration

	OnFatal func(error)
	Sleep   func(ctx context.Context, d time.Duration) error
	Now     func() time.Time
}

// OptionsFromConfig copies the connection settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	mode := ModeStrict
	if cfg.DB.Mode == config.ModePermissive {
		mode = ModePermissive
	}
	return Options{
		Mode:          mode,
		Attempts:      cfg.DB.ConnectAttempts,
		BackoffBase:   cfg.DB.BackoffBase,
		BackoffJitter: cfg.DB.BackoffJitter,
		PingTimeout:   cfg.DB.ServerSelectionTimeout,
		DegradedRetry: cfg.DB.DegradedRetry,
	}
}

type entry struct {
	mu           sync.Mutex
	handle       Handle
	degraded     bool
	reconnecting bool
	retryAt      time.Time
}

// Manager owns the handle of every tenant. At most one live handle exists per
// tenant; a lost handle is dropped and the next Get reconnects. A degraded
// tenant is retried in the background while requests get the no-op handle.
type Manager struct {
	connector Connector
	opts      Options
	entries   map[domain.Tenant]*entry

	bg        context.Context
	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewManager(connector Connector, opts Options) *Manager {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 10 * time.Second
	}
	if opts.OnFatal == nil {
		opts.OnFatal = func(err error) {
			log.Fatal().Err(err).Msg("tenant database unavailable in strict mode")
		}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	bg, stop := context.WithCancel(context.Background())
	m := &Manager{
		connector: connector,
		opts:      opts,
		entries:   make(map[domain.Tenant]*entry, len(domain.Tenants)),
		bg:        bg,
		stop:      stop,
		done:      make(chan struct{}),
	}
	for _, t := range domain.Tenants {
		m.entries[t] = &entry{}
	}
	return m
}

// Start connects every tenant up front so strict mode fails before the
// server accepts traffic.
func (m *Manager) Start(ctx context.Context) error {
	for _, t := range domain.Tenants {
		if _, err := m.Get(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the live handle for t, connecting if there is none.
func (m *Manager) Get(ctx context.Context, t domain.Tenant) (Handle, error) {
	e, ok := m.entries[t]
	if !ok {
		return nil, fmt.Errorf("unknown tenant %q: %w", t, domain.ErrBadRequest)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != nil {
		if e.degraded && !e.reconnecting && !m.opts.Now().Before(e.retryAt) && m.bg.Err() == nil {
			e.reconnecting = true
			m.wg.Add(1)
			go m.reconnect(t, e)
		}
		return e.handle, nil
	}

	h, err := m.connect(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if m.opts.Mode == ModeStrict {
			m.opts.OnFatal(err)
			return nil, err
		}
		log.Warn().Err(err).Str("tenant", string(t)).Dur("retry_in", m.opts.DegradedRetry).
			Msg("permissive mode: serving no-op handle")
		e.handle = NewNoop(t)
		e.degraded = true
		e.retryAt = m.opts.Now().Add(m.opts.DegradedRetry)
		return e.handle, nil
	}

	e.handle = h
	e.degraded = false
	m.wg.Add(1)
	go m.watch(t, e, h)
	return h, nil
}

// Status reports the state of every tenant handle.
func (m *Manager) Status() map[domain.Tenant]string {
	out := make(map[domain.Tenant]string, len(m.entries))
	for t, e := range m.entries {
		e.mu.Lock()
		switch {
		case e.handle == nil:
			out[t] = StateDisconnected
		case e.degraded:
			out[t] = StateDegraded
		default:
			out[t] = StateConnected
		}
		e.mu.Unlock()
	}
	return out
}

// Close stops the watchers and closes every live handle.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.stop()
	})
	m.wg.Wait()

	var firstErr error
	for t, e := range m.entries {
		e.mu.Lock()
		if e.handle != nil {
			if err := e.handle.Close(ctx); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", t, err)
			}
			e.handle = nil
		}
		e.mu.Unlock()
	}
	return firstErr
}

// reconnect swaps a degraded tenant's no-op handle for a live one once the
// database answers again. On failure the next attempt waits DegradedRetry.
func (m *Manager) reconnect(t domain.Tenant, e *entry) {
	defer m.wg.Done()
	h, err := m.connect(m.bg, t)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconnecting = false
	if err != nil {
		e.retryAt = m.opts.Now().Add(m.opts.DegradedRetry)
		if m.bg.Err() == nil {
			log.Warn().Err(err).Str("tenant", string(t)).Dur("retry_in", m.opts.DegradedRetry).
				Msg("tenant still unreachable, serving no-op handle")
		}
		return
	}
	if m.bg.Err() != nil {
		_ = h.Close(context.Background())
		return
	}
	e.handle = h
	e.degraded = false
	m.wg.Add(1)
	go m.watch(t, e, h)
	log.Info().Str("tenant", string(t)).Msg("tenant recovered, leaving degraded mode")
}

func (m *Manager) connect(ctx context.Context, t domain.Tenant) (Handle, error) {
	target := Redact(m.connector.Descriptor(t))
	var lastErr error
	attempt := 0
	for attempt < m.opts.Attempts {
		if attempt > 0 {
			delay := Backoff(m.opts.BackoffBase, m.opts.BackoffJitter, attempt-1)
			log.Warn().Err(lastErr).Str("tenant", string(t)).Str("target", target).
				Int("attempt", attempt).Dur("retry_in", delay).Msg("tenant connect failed")
			if err := m.opts.Sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("connect %s: %w", t, err)
			}
		}
		attempt++

		h, err := m.dial(ctx, t)
		if err == nil {
			log.Info().Str("tenant", string(t)).Str("target", target).Int("attempt", attempt).Msg("tenant connected")
			return h, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connect %s: %w", t, ctx.Err())
		}
		if IsPermanent(err) {
			log.Error().Err(err).Str("tenant", string(t)).Str("target", target).Msg("tenant connect failed, not retrying")
			break
		}
	}
	return nil, &domain.ConnectionError{Tenant: t, Attempts: attempt, Err: lastErr}
}

func (m *Manager) dial(ctx context.Context, t domain.Tenant) (Handle, error) {
	h, err := m.connector.Connect(ctx, t)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout)
	defer cancel()
	if err := h.Ping(pctx); err != nil {
		_ = h.Close(context.Background())
		return nil, fmt.Errorf("liveness probe: %w", err)
	}
	return h, nil
}

func (m *Manager) watch(t domain.Tenant, e *entry, h Handle) {
	defer m.wg.Done()
	select {
	case <-h.Disconnected():
	case <-m.done:
		return
	}

	e.mu.Lock()
	if e.handle == h {
		e.handle = nil
	}
	e.mu.Unlock()
	log.Warn().Str("tenant", string(t)).Msg("tenant connection lost, reconnecting on next use")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		log.Debug().Err(err).Str("tenant", string(t)).Msg("close lost handle")
	}
}
