package mining

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestReconcile(t *testing.T) {
	cycle := 30 * time.Second

	tests := []struct {
		name         string
		lastTickMs   int64
		nowMs        int64
		wantCycles   int64
		wantLeftover time.Duration
	}{
		{
			name:         "no elapsed time",
			lastTickMs:   1000,
			nowMs:        1000,
			wantCycles:   0,
			wantLeftover: 0,
		},
		{
			name:         "mid first cycle",
			lastTickMs:   0,
			nowMs:        12_000,
			wantCycles:   0,
			wantLeftover: 12 * time.Second,
		},
		{
			name:         "95 seconds elapsed",
			lastTickMs:   0,
			nowMs:        95_000,
			wantCycles:   3,
			wantLeftover: 5 * time.Second,
		},
		{
			name:         "exact cycle boundary",
			lastTickMs:   0,
			nowMs:        90_000,
			wantCycles:   3,
			wantLeftover: 0,
		},
		{
			name:         "tick ahead of clock",
			lastTickMs:   50_000,
			nowMs:        10_000,
			wantCycles:   0,
			wantLeftover: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles, leftover := Reconcile(tt.lastTickMs, tt.nowMs, cycle)
			assert.Equal(t, tt.wantCycles, cycles)
			assert.Equal(t, tt.wantLeftover, leftover)
		})
	}
}

func TestReconcile_ZeroCycle(t *testing.T) {
	cycles, leftover := Reconcile(0, 100_000, 0)
	assert.Equal(t, int64(0), cycles)
	assert.Equal(t, time.Duration(0), leftover)
}

// Property: the reconciliation decomposition is exact. Whole cycles plus
// leftover always reassemble the clamped elapsed span, and the leftover
// never reaches a full cycle.
func TestReconcile_Decomposition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lastTickMs := rapid.Int64Range(0, 1<<50).Draw(t, "lastTickMs")
		nowMs := rapid.Int64Range(0, 1<<50).Draw(t, "nowMs")
		cycleSec := rapid.Int64Range(1, 3600).Draw(t, "cycleSec")
		cycle := time.Duration(cycleSec) * time.Second

		cycles, leftover := Reconcile(lastTickMs, nowMs, cycle)

		if cycles < 0 {
			t.Fatalf("negative cycle count: %d", cycles)
		}
		if leftover < 0 || leftover >= cycle {
			t.Fatalf("leftover %v out of [0, %v)", leftover, cycle)
		}

		elapsedMs := nowMs - lastTickMs
		if elapsedMs < 0 {
			elapsedMs = 0
		}
		if got := cycles*cycle.Milliseconds() + leftover.Milliseconds(); got != elapsedMs {
			t.Fatalf("decomposition mismatch: %d != %d", got, elapsedMs)
		}
	})
}

func TestSessionRemaining(t *testing.T) {
	assert.Equal(t, int64(10), SessionRemaining(20_000, 10_000))
	assert.Equal(t, int64(0), SessionRemaining(10_000, 10_000))
	assert.Equal(t, int64(0), SessionRemaining(10_000, 50_000))
}

func TestSessionProgress(t *testing.T) {
	total := 24 * time.Hour
	assert.InDelta(t, 0, SessionProgress(int64(total.Seconds()), total), 0.001)
	assert.InDelta(t, 50, SessionProgress(int64(total.Seconds())/2, total), 0.001)
	assert.InDelta(t, 100, SessionProgress(0, total), 0.001)
	assert.InDelta(t, 100, SessionProgress(0, 0), 0.001)
}
