package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/calendar"
	"slotkeeper/internal/events"
	"slotkeeper/internal/metrics"
)

// StoreFactory builds the store chain of a provider.
type StoreFactory func(providerID int64) (availability.Store, error)

type invalidator interface {
	Invalidate(ctx context.Context)
}

// Session is the live engine of one provider.
type Session struct {
	ProviderID int64
	Engine     *availability.Engine

	store availability.Store
	ready chan struct{}
	err   error

	mu        sync.Mutex
	updatedAt time.Time
	months    map[string]bool
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.updatedAt = now
	s.mu.Unlock()
}

// IsExpired reports whether the session was idle longer than timeout.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.updatedAt) > timeout
}

// EnsureMonth loads the month containing date unless it is already resolved.
func (s *Session) EnsureMonth(ctx context.Context, date string) error {
	start, end, err := calendar.MonthWindow(date)
	if err != nil {
		return err
	}

	s.mu.Lock()
	loaded := s.months[start]
	s.mu.Unlock()
	if loaded {
		return nil
	}

	if err := s.Engine.LoadTimeSlotsForMonth(ctx, start, end); err != nil {
		return err
	}

	s.mu.Lock()
	s.months[start] = true
	s.mu.Unlock()
	return nil
}

// Refresh drops cached ranges and resolved days, then reloads the month containing date.
func (s *Session) Refresh(ctx context.Context, date string) error {
	if inv, ok := s.store.(invalidator); ok {
		inv.Invalidate(ctx)
	}
	s.Engine.RefreshCalendar()

	s.mu.Lock()
	s.months = make(map[string]bool)
	s.mu.Unlock()

	return s.EnsureMonth(ctx, date)
}

// Options configures engines built by the manager.
type Options struct {
	Engine      availability.Config
	IdleTimeout time.Duration
	Bus         *events.EventBus
	Now         func() time.Time
}

// Manager keeps one engine per provider and drops idle ones.
type Manager struct {
	factory StoreFactory
	opts    Options
	logger  *zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(factory StoreFactory, opts Options, logger *zerolog.Logger) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		factory:  factory,
		opts:     opts,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the ready session of providerID, building and loading it on first use.
// Concurrent callers for the same provider share one load.
func (m *Manager) Get(ctx context.Context, providerID int64) (*Session, error) {
	now := m.opts.Now()

	m.mu.Lock()
	s, ok := m.sessions[providerID]
	if ok && s.IsExpired(now, m.opts.IdleTimeout) {
		delete(m.sessions, providerID)
		ok = false
	}
	if !ok {
		s = &Session{
			ProviderID: providerID,
			ready:      make(chan struct{}),
			updatedAt:  now,
			months:     make(map[string]bool),
		}
		m.sessions[providerID] = s
		metrics.SetActiveSessions(len(m.sessions))
		m.mu.Unlock()

		m.start(ctx, s)
	} else {
		m.mu.Unlock()
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	s.touch(now)
	return s, nil
}

func (m *Manager) start(ctx context.Context, s *Session) {
	defer close(s.ready)

	s.err = m.build(ctx, s)
	if s.err == nil {
		m.logger.Info().Int64("provider_id", s.ProviderID).Msg("session started")
		return
	}

	m.logger.Error().Err(s.err).Int64("provider_id", s.ProviderID).Msg("failed to start session")
	m.mu.Lock()
	if m.sessions[s.ProviderID] == s {
		delete(m.sessions, s.ProviderID)
	}
	metrics.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()
}

func (m *Manager) build(ctx context.Context, s *Session) error {
	store, err := m.factory(s.ProviderID)
	if err != nil {
		return fmt.Errorf("build store for provider %d: %w", s.ProviderID, err)
	}

	engine := availability.NewEngine(s.ProviderID, store, m.opts.Engine, m.logger)
	engine.UseClock(m.opts.Now)
	if m.opts.Bus != nil {
		engine.UseEvents(m.opts.Bus)
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}

	s.store = store
	s.Engine = engine
	return s.EnsureMonth(ctx, calendar.FormatDate(m.opts.Now()))
}

// Evict drops the session of providerID; the next Get rebuilds it.
func (m *Manager) Evict(providerID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, providerID)
	metrics.SetActiveSessions(len(m.sessions))
}

// EvictAll drops every session.
func (m *Manager) EvictAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[int64]*Session)
	metrics.SetActiveSessions(0)
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup removes idle sessions and returns how many were dropped.
func (m *Manager) Cleanup() int {
	now := m.opts.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, s := range m.sessions {
		select {
		case <-s.ready:
		default:
			continue
		}
		if s.IsExpired(now, m.opts.IdleTimeout) {
			delete(m.sessions, id)
			count++
		}
	}
	metrics.SetActiveSessions(len(m.sessions))
	return count
}

// Run calls Cleanup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				m.logger.Debug().Int("count", n).Msg("expired sessions removed")
			}
		}
	}
}
