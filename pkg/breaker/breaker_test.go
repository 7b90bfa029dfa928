package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ModelLane/pkg/llmerrors"
)

// fakeClock is a manually advanced clock for deterministic timeout tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	return Config{
		FailureThreshold:  3,
		SuccessThreshold:  2,
		OpenTimeout:       30 * time.Second,
		HalfOpenMaxProbes: 2,
	}
}

func newTestBreaker(t *testing.T) (*Breaker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	b, err := NewWithClock(testConfig(), clock.Now)
	require.NoError(t, err)
	return b, clock
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero failure threshold", func(c *Config) { c.FailureThreshold = 0 }},
		{"negative failure threshold", func(c *Config) { c.FailureThreshold = -1 }},
		{"zero success threshold", func(c *Config) { c.SuccessThreshold = 0 }},
		{"zero open timeout", func(c *Config) { c.OpenTimeout = 0 }},
		{"zero probes", func(c *Config) { c.HalfOpenMaxProbes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mut(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	// Two failures: still closed, still allowing.
	b.RecordFailure(llmerrors.ClassificationTransient)
	b.RecordFailure(llmerrors.ClassificationTransient)
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	// Third failure crosses the threshold.
	b.RecordFailure(llmerrors.ClassificationTransient)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	snap := b.Snapshot()
	require.NotNil(t, snap.LastFailureAt)
	assert.Equal(t, 3, snap.FailureCount)
}

func TestBreaker_SuccessDecrementsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t)

	// Alternating failure/success at the boundary must not flap open:
	// the forgiveness decrement keeps the count below the threshold.
	for i := 0; i < 10; i++ {
		b.RecordFailure(llmerrors.ClassificationTransient)
		b.RecordFailure(llmerrors.ClassificationTransient)
		b.RecordSuccess()
		b.RecordSuccess()
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailureCount)
}

func TestBreaker_FailureCountNeverNegative(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, 0, b.Snapshot().FailureCount)

	b.RecordFailure(llmerrors.ClassificationTransient)
	assert.Equal(t, 1, b.Snapshot().FailureCount)
}

func TestBreaker_PermanentFailuresDoNotCount(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 20; i++ {
		b.RecordFailure(llmerrors.ClassificationPermanent)
	}

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, int64(20), snap.PermanentErrors)
	assert.True(t, b.Allow())
}

func TestBreaker_OpenToHalfOpenAfterTimeout(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure(llmerrors.ClassificationTransient)
	}
	require.Equal(t, StateOpen, b.State())

	// Before the timeout the breaker stays shut.
	clock.Advance(29 * time.Second)
	assert.False(t, b.Allow())
	assert.Equal(t, StateOpen, b.State())

	// Crossing the timeout admits exactly the transitioning caller.
	clock.Advance(2 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, 1, b.Snapshot().ProbesInFlight)
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure(llmerrors.ClassificationTransient)
	}
	clock.Advance(31 * time.Second)
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())

	require.True(t, b.Allow())
	b.RecordSuccess()

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, 0, snap.SuccessCount)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure(llmerrors.ClassificationTransient)
	}
	clock.Advance(31 * time.Second)
	require.True(t, b.Allow())

	// One success of the required two, then a failed probe.
	b.RecordSuccess()
	b.RecordFailure(llmerrors.ClassificationTransient)

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	// The open window is rescheduled from the probe failure.
	clock.Advance(29 * time.Second)
	assert.False(t, b.Allow())
	clock.Advance(2 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenProbeCap(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure(llmerrors.ClassificationTransient)
	}
	clock.Advance(31 * time.Second)

	assert.True(t, b.Allow())  // transition + probe 1
	assert.True(t, b.Allow())  // probe 2
	assert.False(t, b.Allow()) // cap reached

	// Finishing a probe frees a slot.
	b.RecordSuccess()
	assert.True(t, b.Allow())
}

func TestBreaker_ReleaseProbeReturnsSlotWithoutOutcome(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure(llmerrors.ClassificationTransient)
	}
	clock.Advance(31 * time.Second)

	assert.True(t, b.Allow()) // transition + probe 1
	assert.True(t, b.Allow()) // probe 2
	assert.False(t, b.Allow())

	// Backing out of an admitted probe frees the slot but records neither
	// success nor failure.
	b.ReleaseProbe()
	assert.True(t, b.Allow())
	snap := b.Snapshot()
	assert.Equal(t, StateHalfOpen, snap.State)
	assert.Equal(t, 0, snap.SuccessCount)
}

func TestBreaker_ReleaseProbeNoopInClosed(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordFailure(llmerrors.ClassificationTransient)
	b.ReleaseProbe()

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.FailureCount)
}

func TestBreaker_ConcurrentHalfOpenTransition(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure(llmerrors.ClassificationTransient)
	}
	require.Equal(t, StateOpen, b.State())
	clock.Advance(31 * time.Second)

	// 100 concurrent callers cross the OPEN→HALF_OPEN boundary together.
	// At most HalfOpenMaxProbes of them may be admitted.
	const callers = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, testConfig().HalfOpenMaxProbes, allowed)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ConcurrentRecordingIsSafe(t *testing.T) {
	b, _ := newTestBreaker(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				b.RecordFailure(llmerrors.ClassificationTransient)
			} else {
				b.RecordSuccess()
			}
			b.Allow()
			b.Snapshot()
		}(i)
	}
	wg.Wait()

	// No invariant violation: state is one of the three valid states and
	// counters are non-negative.
	snap := b.Snapshot()
	assert.Contains(t, []State{StateClosed, StateOpen, StateHalfOpen}, snap.State)
	assert.GreaterOrEqual(t, snap.FailureCount, 0)
	assert.GreaterOrEqual(t, snap.SuccessCount, 0)
}

func TestBreaker_NeverOpensBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	// Arbitrary interleavings of at most threshold-1 net failures never open.
	seq := []bool{true, false, true, true, false, false, true, false, true, false}
	for _, fail := range seq {
		if fail {
			b.RecordFailure(llmerrors.ClassificationTransient)
		} else {
			b.RecordSuccess()
		}
		if b.State() == StateOpen {
			assert.GreaterOrEqual(t, b.Snapshot().FailureCount, testConfig().FailureThreshold)
		}
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
}
