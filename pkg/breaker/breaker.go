// Package breaker implements a per-provider circuit breaker with the classic
// CLOSED / OPEN / HALF_OPEN state machine. One Breaker instance guards one
// upstream provider and is shared by all concurrent router calls targeting it.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"ModelLane/pkg/llmerrors"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed indicates normal operation; requests flow through.
	StateClosed State = iota
	// StateOpen indicates the provider is considered unhealthy; requests are rejected.
	StateOpen
	// StateHalfOpen indicates a limited number of trial requests are permitted.
	StateHalfOpen
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the state as its canonical name so snapshots read as
// "CLOSED"/"OPEN"/"HALF_OPEN" on the status endpoint.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Config controls the breaker's state transitions. All fields are required
// and must be positive; New rejects anything else.
type Config struct {
	// FailureThreshold is the number of counted failures in CLOSED before opening.
	FailureThreshold int
	// SuccessThreshold is the number of successes in HALF_OPEN before closing.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays OPEN before allowing a probe.
	OpenTimeout time.Duration
	// HalfOpenMaxProbes caps concurrent trial requests while HALF_OPEN.
	HalfOpenMaxProbes int
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("breaker: failure_threshold must be > 0, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker: success_threshold must be > 0, got %d", c.SuccessThreshold)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("breaker: open_timeout must be > 0, got %s", c.OpenTimeout)
	}
	if c.HalfOpenMaxProbes <= 0 {
		return fmt.Errorf("breaker: half_open_max_probes must be > 0, got %d", c.HalfOpenMaxProbes)
	}
	return nil
}

// Snapshot is a read-only view of the breaker state for the status endpoint.
type Snapshot struct {
	State            State      `json:"state"`
	FailureCount     int        `json:"failure_count"`
	SuccessCount     int        `json:"success_count"`
	ProbesInFlight   int        `json:"probes_in_flight"`
	LastFailureAt    *time.Time `json:"last_failure_at,omitempty"`
	PermanentErrors  int64      `json:"permanent_errors"`
	TotalSuccesses   int64      `json:"total_successes"`
	TotalFailures    int64      `json:"total_failures"`
	TotalTransitions int64      `json:"total_transitions"`
}

// Breaker is a thread-safe circuit breaker. The zero value is not usable;
// construct with New.
type Breaker struct {
	cfg Config

	mu             sync.Mutex
	state          State
	failureCount   int
	successCount   int
	probesInFlight int
	lastFailureAt  time.Time
	hasFailure     bool

	// running totals, bookkeeping only
	permanentErrors  int64
	totalSuccesses   int64
	totalFailures    int64
	totalTransitions int64

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates a Breaker in the CLOSED state.
func New(cfg Config) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}, nil
}

// NewWithClock creates a Breaker using the given clock. Tests use this to
// advance time across the OPEN timeout without sleeping.
func NewWithClock(cfg Config, now func() time.Time) (*Breaker, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	b.now = now
	return b, nil
}

// Allow reports whether a request may proceed. The OPEN→HALF_OPEN transition
// happens inside the same locked decision, so exactly one caller crossing the
// timeout boundary performs the transition and is granted the first probe
// slot; concurrent callers observe HALF_OPEN and are throttled by
// HalfOpenMaxProbes.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(b.lastFailureAt) < b.cfg.OpenTimeout {
			return false
		}
		b.transitionLocked(StateHalfOpen)
		b.successCount = 0
		b.probesInFlight = 1
		return true

	case StateHalfOpen:
		if b.probesInFlight >= b.cfg.HalfOpenMaxProbes {
			return false
		}
		b.probesInFlight++
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful call against the breaker.
//
// In CLOSED the failure count is decremented toward zero rather than reset,
// so a single stale failure does not bias the count but a genuinely flaky
// provider still accumulates toward the threshold. In HALF_OPEN successes
// count toward SuccessThreshold; reaching it closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++

	switch b.state {
	case StateClosed:
		if b.failureCount > 0 {
			b.failureCount--
		}

	case StateHalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			b.probesInFlight = 0
		}

	case StateOpen:
		// Late completion from a call admitted before the breaker opened.
		// Ignored: the probe window decides recovery.
	}
}

// ReleaseProbe returns an admitted HALF_OPEN probe slot without recording an
// outcome, for callers that decided not to dispatch after Allow. No-op in any
// other state.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.probesInFlight > 0 {
		b.probesInFlight--
	}
}

// RecordFailure records a failed call with its classification.
//
// PERMANENT failures never move the state machine: retrying the same input
// would fail against a healthy provider too, so they say nothing about
// provider health. They are still counted for observability.
func (b *Breaker) RecordFailure(class llmerrors.Classification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if class == llmerrors.ClassificationPermanent {
		b.permanentErrors++
		return
	}

	b.totalFailures++

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.open()
		}

	case StateHalfOpen:
		// A single failed probe re-opens immediately and discards any
		// partial probe progress. Conservative on purpose.
		b.open()

	case StateOpen:
		// Late failure from a call admitted before opening; the open
		// window is already scheduled.
	}
}

// open transitions to OPEN and schedules the earliest probe time.
// Caller must hold b.mu.
func (b *Breaker) open() {
	b.transitionLocked(StateOpen)
	b.lastFailureAt = b.now()
	b.hasFailure = true
	b.successCount = 0
	b.probesInFlight = 0
}

func (b *Breaker) transitionLocked(to State) {
	if b.state != to {
		b.totalTransitions++
	}
	b.state = to
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a consistent read-only view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:            b.state,
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		ProbesInFlight:   b.probesInFlight,
		PermanentErrors:  b.permanentErrors,
		TotalSuccesses:   b.totalSuccesses,
		TotalFailures:    b.totalFailures,
		TotalTransitions: b.totalTransitions,
	}
	if b.hasFailure {
		t := b.lastFailureAt
		s.LastFailureAt = &t
	}
	return s
}
