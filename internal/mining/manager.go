package mining

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Mining engine errors.
var (
	ErrAlreadyMining   = errors.New("mining session already active")
	ErrSessionExpired  = errors.New("mining session already expired")
	ErrNoActiveSession = errors.New("no active mining session")
)

// Config holds the mining engine parameters. Zero durations fall back to
// the documented defaults via withDefaults.
type Config struct {
	// Cycle is the accrual interval; each completed cycle credits
	// RewardPerCycle units.
	Cycle time.Duration
	// Session is the total length of one mining session.
	Session time.Duration
	// RewardPerCycle is the balance increment per completed cycle.
	RewardPerCycle int64
	// CyclePeriod and SessionPeriod are the two timer resolutions.
	CyclePeriod   time.Duration
	SessionPeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.Cycle <= 0 {
		c.Cycle = 30 * time.Second
	}
	if c.Session <= 0 {
		c.Session = 24 * time.Hour
	}
	if c.RewardPerCycle <= 0 {
		c.RewardPerCycle = 1
	}
	if c.CyclePeriod <= 0 {
		c.CyclePeriod = 100 * time.Millisecond
	}
	if c.SessionPeriod <= 0 {
		c.SessionPeriod = time.Second
	}
	return c
}

// Manager owns all running mining sessions, at most one per user.
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager creates a mining session manager backed by the given store.
func NewManager(store Store, cfg Config) *Manager {
	return &Manager{
		store:    store,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		sessions: make(map[int64]*Session),
	}
}

// Start begins a new mining session for the user: session end stamped at
// now plus the session length, cycle tick stamped at now, both persisted
// before any timer runs. Starting while a session is active is a no-op
// surfaced as ErrAlreadyMining alongside the running session.
func (m *Manager) Start(ctx context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[userID]; ok {
		return existing, ErrAlreadyMining
	}

	now := m.now()
	endMs := now.Add(m.cfg.Session).UnixMilli()
	if err := m.store.StartSession(ctx, userID, endMs, now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to start mining session: %w", err)
	}

	s := newSession(userID, endMs, 0, m.store, m.cfg, m.now, m.remove)
	m.sessions[userID] = s
	s.start()

	log.Info().Int64("user_id", userID).Int64("end_ms", endMs).Msg("Mining session started")
	return s, nil
}

// Resume picks up a persisted session that was running while the process
// was not: completed cycles since the stored tick are credited in one
// write, the tick is restamped to now minus the leftover, and the timers
// restart with the in-cycle counter seeded from the leftover. Returns the
// session and the amount credited during reconciliation.
func (m *Manager) Resume(ctx context.Context, userID, endMs, lastTickMs int64) (*Session, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[userID]; ok {
		return existing, 0, ErrAlreadyMining
	}

	nowMs := m.now().UnixMilli()
	if endMs <= nowMs {
		return nil, 0, ErrSessionExpired
	}

	fullCycles, leftover := Reconcile(lastTickMs, nowMs, m.cfg.Cycle)

	var credited int64
	if fullCycles > 0 {
		credited = fullCycles * m.cfg.RewardPerCycle
		tickMs := nowMs - leftover.Milliseconds()
		if err := m.store.CreditCycles(ctx, userID, credited, tickMs); err != nil {
			// The operation does not apply; the caller may retry the
			// whole resume pass from current state.
			return nil, 0, fmt.Errorf("failed to credit reconciled cycles: %w", err)
		}
	}

	s := newSession(userID, endMs, leftover, m.store, m.cfg, m.now, m.remove)
	m.sessions[userID] = s
	s.start()

	log.Info().
		Int64("user_id", userID).
		Int64("credited", credited).
		Dur("leftover", leftover).
		Msg("Mining session resumed")
	return s, credited, nil
}

// Session returns the running session for a user, if any.
func (m *Manager) Session(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Active reports whether the user has a running session.
func (m *Manager) Active(userID int64) bool {
	_, ok := m.Session(userID)
	return ok
}

// Stop tears down the user's session without clearing the persisted
// session marker. Returns ErrNoActiveSession when none is running.
func (m *Manager) Stop(userID int64) error {
	s, ok := m.Session(userID)
	if !ok {
		return ErrNoActiveSession
	}
	s.Stop()
	return nil
}

// StopAll tears down every running session. Used on process shutdown;
// persisted session markers stay in place so the next boot resumes them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}

func (m *Manager) remove(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
