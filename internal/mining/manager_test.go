package mining

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store recording every write.
type fakeStore struct {
	mu sync.Mutex

	balance    map[int64]int64
	lastTick   map[int64]int64
	sessionEnd map[int64]int64
	cleared    map[int64]int

	creditDelay time.Duration

	// inFlight tracks concurrent CreditCycles calls to observe the
	// single-credit guard from outside.
	inFlight    int
	maxInFlight int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		balance:    make(map[int64]int64),
		lastTick:   make(map[int64]int64),
		sessionEnd: make(map[int64]int64),
		cleared:    make(map[int64]int),
	}
}

func (f *fakeStore) StartSession(_ context.Context, userID, endMs, tickMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionEnd[userID] = endMs
	f.lastTick[userID] = tickMs
	return nil
}

func (f *fakeStore) CreditCycles(_ context.Context, userID, amount, tickMs int64) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.creditDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if tickMs >= f.lastTick[userID] {
		f.balance[userID] += amount
		f.lastTick[userID] = tickMs
	}
	return nil
}

func (f *fakeStore) ClearSession(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessionEnd, userID)
	f.cleared[userID]++
	return nil
}

func (f *fakeStore) balanceOf(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance[userID]
}

func (f *fakeStore) clearedCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared[userID]
}

func TestManager_Start(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, Config{})
	defer m.StopAll()
	ctx := context.Background()

	session, err := m.Start(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, m.Active(1))

	store.mu.Lock()
	endMs, ok := store.sessionEnd[1]
	store.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, session.EndsAt(), endMs)

	// A second start is a no-op returning the running session.
	again, err := m.Start(ctx, 1)
	assert.ErrorIs(t, err, ErrAlreadyMining)
	assert.Same(t, session, again)
}

func TestManager_Resume(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, Config{
		Cycle:          30 * time.Second,
		RewardPerCycle: 1,
	})
	defer m.StopAll()
	ctx := context.Background()

	// The stored tick is 95 seconds in the past: three completed cycles
	// to credit, five seconds already into the fourth.
	nowMs := time.Now().UnixMilli()
	endMs := nowMs + (12 * time.Hour).Milliseconds()
	lastTickMs := nowMs - 95_000

	session, credited, err := m.Resume(ctx, 1, endMs, lastTickMs)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, int64(3), credited)
	assert.Equal(t, int64(3), store.balanceOf(1))
	assert.GreaterOrEqual(t, session.CyclePercent(), 16)

	store.mu.Lock()
	tick := store.lastTick[1]
	store.mu.Unlock()
	// The restamped tick backdates the leftover so the partial cycle
	// still counts toward the next credit.
	assert.InDelta(t, float64(nowMs-5000), float64(tick), 200)
}

func TestManager_Resume_Expired(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, Config{})
	ctx := context.Background()

	endMs := time.Now().Add(-time.Minute).UnixMilli()
	_, _, err := m.Resume(ctx, 1, endMs, endMs-100_000)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, m.Active(1))
}

func TestManager_StopKeepsSessionMarker(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, Config{})
	ctx := context.Background()

	_, err := m.Start(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, m.Stop(1))
	assert.False(t, m.Active(1))
	assert.Equal(t, 0, store.clearedCount(1))

	store.mu.Lock()
	_, ok := store.sessionEnd[1]
	store.mu.Unlock()
	assert.True(t, ok)

	assert.ErrorIs(t, m.Stop(1), ErrNoActiveSession)
}

func TestSession_FinishClearsMarker(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, Config{
		Cycle:         time.Hour,
		Session:       50 * time.Millisecond,
		CyclePeriod:   10 * time.Millisecond,
		SessionPeriod: 10 * time.Millisecond,
	})
	ctx := context.Background()

	_, err := m.Start(ctx, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !m.Active(1)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, store.clearedCount(1))
}

func TestSession_CreditsCycles(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, Config{
		Cycle:          30 * time.Millisecond,
		Session:        time.Hour,
		RewardPerCycle: 1,
		CyclePeriod:    5 * time.Millisecond,
	})
	defer m.StopAll()
	ctx := context.Background()

	_, err := m.Start(ctx, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.balanceOf(1) >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSession_SingleCreditInFlight(t *testing.T) {
	store := newFakeStore()
	// Credits take far longer than a cycle, so threshold crossings pile
	// up while one write is in flight. The guard must drop them.
	store.creditDelay = 60 * time.Millisecond

	m := NewManager(store, Config{
		Cycle:          20 * time.Millisecond,
		Session:        time.Hour,
		RewardPerCycle: 1,
		CyclePeriod:    5 * time.Millisecond,
	})
	defer m.StopAll()
	ctx := context.Background()

	_, err := m.Start(ctx, 1)
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)
	m.StopAll()

	store.mu.Lock()
	maxInFlight := store.maxInFlight
	store.mu.Unlock()
	assert.LessOrEqual(t, maxInFlight, 1)
	assert.Greater(t, store.balanceOf(1), int64(0))
}
