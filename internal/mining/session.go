package mining

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/metrics"
)

// Store is the persistence surface the mining engine writes through.
// All balance mutations are additive increments, so a retried write after
// a dropped acknowledgement cannot corrupt the stored balance shape.
type Store interface {
	// StartSession stamps a new session end and cycle tick on the user.
	StartSession(ctx context.Context, userID, endMs, tickMs int64) error
	// CreditCycles atomically adds amount to the balance and restamps the
	// cycle tick, as a single write. The tick only ever moves forward.
	CreditCycles(ctx context.Context, userID, amount, tickMs int64) error
	// ClearSession removes the session end marker from the user.
	ClearSession(ctx context.Context, userID int64) error
}

// creditTimeout bounds each remote credit write so a hung store cannot
// pin the in-flight guard forever.
const creditTimeout = 10 * time.Second

// Session owns the two timers of one running mining session: the
// high-frequency cycle timer that accrues fractional in-cycle time and
// fires credit events, and the one-second session timer that counts the
// session down and finishes it at zero. A session is acquired from the
// Manager and released exactly once, whatever the exit path.
type Session struct {
	userID int64
	endMs  int64

	store Store
	cfg   Config
	now   func() time.Time

	// inCycleMs is written only by the cycle loop (and once before start
	// when resuming mid-cycle); read concurrently by Percent.
	inCycleMs atomic.Int64
	remaining atomic.Int64

	// crediting is the re-entrancy guard around the credit event.
	// Overlapping threshold fires while a credit is in flight are
	// dropped, never queued.
	crediting atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
	onStop   func(userID int64)
}

func newSession(userID, endMs int64, leftover time.Duration, store Store, cfg Config, now func() time.Time, onStop func(int64)) *Session {
	s := &Session{
		userID: userID,
		endMs:  endMs,
		store:  store,
		cfg:    cfg,
		now:    now,
		done:   make(chan struct{}),
		onStop: onStop,
	}
	s.inCycleMs.Store(leftover.Milliseconds())
	s.remaining.Store(SessionRemaining(endMs, now().UnixMilli()))
	return s
}

// start launches both timer loops.
func (s *Session) start() {
	go s.cycleLoop()
	go s.sessionLoop()
}

// cycleLoop advances the in-cycle counter by the timer period and fires a
// credit event each time the counter crosses the cycle length.
func (s *Session) cycleLoop() {
	ticker := time.NewTicker(s.cfg.CyclePeriod)
	defer ticker.Stop()

	cycleMs := s.cfg.Cycle.Milliseconds()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			elapsed := s.inCycleMs.Load() + s.cfg.CyclePeriod.Milliseconds()
			if elapsed >= cycleMs {
				elapsed = 0
				s.creditCycle()
			}
			s.inCycleMs.Store(elapsed)
		}
	}
}

// creditCycle applies one cycle reward: balance increment plus tick
// restamp in a single store write. Guarded so only one credit operation
// is ever in flight; a failure simply does not apply and the next
// threshold crossing retries against current state.
func (s *Session) creditCycle() {
	if !s.crediting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.crediting.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), creditTimeout)
		defer cancel()

		tickMs := s.now().UnixMilli()
		if err := s.store.CreditCycles(ctx, s.userID, s.cfg.RewardPerCycle, tickMs); err != nil {
			log.Error().Err(err).Int64("user_id", s.userID).Msg("Failed to credit mining cycle")
			return
		}
		metrics.MiningCyclesCredited.Inc()
	}()
}

// sessionLoop recomputes the remaining session seconds every period and
// finishes the session when it reaches zero.
func (s *Session) sessionLoop() {
	ticker := time.NewTicker(s.cfg.SessionPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			remaining := SessionRemaining(s.endMs, s.now().UnixMilli())
			s.remaining.Store(remaining)
			if remaining <= 0 {
				s.finish()
				return
			}
		}
	}
}

// finish ends an expired session: timers stopped, counter reset, and the
// persisted session-end marker cleared.
func (s *Session) finish() {
	s.shutdown(true)
}

// Stop tears the session down without touching the persisted session
// marker, so a later resume can reconcile and continue it.
func (s *Session) Stop() {
	s.shutdown(false)
}

func (s *Session) shutdown(clearStored bool) {
	s.stopOnce.Do(func() {
		close(s.done)
		s.inCycleMs.Store(0)
		s.crediting.Store(false)

		if clearStored {
			ctx, cancel := context.WithTimeout(context.Background(), creditTimeout)
			defer cancel()
			if err := s.store.ClearSession(ctx, s.userID); err != nil {
				log.Error().Err(err).Int64("user_id", s.userID).Msg("Failed to clear finished mining session")
			}
			log.Info().Int64("user_id", s.userID).Msg("Mining session finished")
		}

		if s.onStop != nil {
			s.onStop(s.userID)
		}
	})
}

// UserID returns the owning user's ID.
func (s *Session) UserID() int64 { return s.userID }

// EndsAt returns the session end as epoch-milliseconds.
func (s *Session) EndsAt() int64 { return s.endMs }

// Remaining returns the whole seconds left in the session.
func (s *Session) Remaining() int64 {
	return s.remaining.Load()
}

// Progress returns the session completion percentage in [0,100].
func (s *Session) Progress() float64 {
	return SessionProgress(s.remaining.Load(), s.cfg.Session)
}

// CyclePercent returns the in-progress cycle's completion as a whole
// percentage, mirroring the client-facing mine counter.
func (s *Session) CyclePercent() int {
	cycleMs := s.cfg.Cycle.Milliseconds()
	if cycleMs <= 0 {
		return 0
	}
	return int(s.inCycleMs.Load() * 100 / cycleMs)
}
