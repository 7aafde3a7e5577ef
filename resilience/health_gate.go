package resilience

import (
	"sync"
	"time"
)

// State is the externally observable state of a HealthGate.
type State int32

const (
	StateHealthy State = iota
	StateDisabledManual
	StateDisabledAuto
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDisabledManual:
		return "DISABLED_MANUAL"
	case StateDisabledAuto:
		return "DISABLED_AUTO"
	default:
		return "UNKNOWN"
	}
}

// maxRecentErrors bounds the distinct messages kept between trips.
const maxRecentErrors = 32

// HealthPolicy defines when the gate trips and how long it stays open.
type HealthPolicy struct {
	// Enabled turns automatic tripping on or off. Failures are still counted
	// when disabled.
	Enabled bool

	// MaxErrorsAllowed is the number of consecutive failures that trips the gate.
	MaxErrorsAllowed int

	// ResetInterval is how long an automatic disable lasts before the gate
	// optimistically reopens.
	ResetInterval time.Duration
}

// DefaultHealthPolicy returns a default policy: enabled, 5 errors, 5 minutes.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		Enabled:          true,
		MaxErrorsAllowed: 5,
		ResetInterval:    5 * time.Minute,
	}
}

// Hooks are invoked after a transition has been applied, outside the gate lock.
type Hooks struct {
	// Tripped is called when consecutive failures disable the gate. messages
	// holds the distinct error messages seen since the previous trip.
	Tripped func(maxErrors int, messages []string)
	// Reopened is called when an automatic disable expires.
	Reopened func(disabledFor time.Duration)
}

// HealthGate decides whether a store may be touched. It trips after
// consecutive failures, reopens on a timer without probing, and any success
// fully re-enables it, including after a manual disable.
type HealthGate struct {
	mu sync.Mutex

	policy         HealthPolicy
	disabled       bool
	autoDisabled   bool
	autoDisabledAt time.Time
	errorCount     int
	messages       []string
	seen           map[string]struct{}

	now   func() time.Time
	hooks Hooks
}

// GateOption configures a HealthGate.
type GateOption func(*HealthGate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) GateOption {
	return func(g *HealthGate) { g.now = now }
}

// WithHooks installs transition callbacks.
func WithHooks(hooks Hooks) GateOption {
	return func(g *HealthGate) { g.hooks = hooks }
}

// NewHealthGate creates a gate. disabled starts the gate in the manual disabled state.
func NewHealthGate(policy HealthPolicy, disabled bool, opts ...GateOption) *HealthGate {
	g := &HealthGate{
		policy:   policy,
		disabled: disabled,
		seen:     make(map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// recoverLocked reopens an expired automatic disable. Caller holds mu.
func (g *HealthGate) recoverLocked() (bool, time.Duration) {
	if !g.autoDisabled {
		return false, 0
	}
	elapsed := g.now().Sub(g.autoDisabledAt)
	if elapsed < g.policy.ResetInterval {
		return false, 0
	}
	g.resetLocked()
	return true, elapsed
}

func (g *HealthGate) resetLocked() {
	g.errorCount = 0
	g.disabled = false
	g.autoDisabled = false
}

func (g *HealthGate) reopened(ok bool, elapsed time.Duration) {
	if ok && g.hooks.Reopened != nil {
		g.hooks.Reopened(elapsed)
	}
}

// CheckAndMaybeRecover reopens the gate if an automatic disable has lasted at
// least the reset interval. It reports whether a reopen happened.
func (g *HealthGate) CheckAndMaybeRecover() bool {
	g.mu.Lock()
	ok, elapsed := g.recoverLocked()
	g.mu.Unlock()
	g.reopened(ok, elapsed)
	return ok
}

// IsBypassed reports whether callers must skip the store.
func (g *HealthGate) IsBypassed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabled
}

// Allow runs CheckAndMaybeRecover and IsBypassed under one lock and reports
// whether the store may be touched.
func (g *HealthGate) Allow() bool {
	g.mu.Lock()
	ok, elapsed := g.recoverLocked()
	allowed := !g.disabled
	g.mu.Unlock()
	g.reopened(ok, elapsed)
	return allowed
}

// RecordSuccess resets the failure count and re-enables the gate, whether it
// was disabled manually or automatically.
func (g *HealthGate) RecordSuccess() {
	g.mu.Lock()
	g.resetLocked()
	g.mu.Unlock()
}

// RecordFailure counts a failure and trips the gate once the policy's
// threshold is reached. It reports whether this call tripped the gate.
func (g *HealthGate) RecordFailure(message string) bool {
	g.mu.Lock()
	if _, ok := g.seen[message]; !ok && len(g.messages) < maxRecentErrors {
		g.seen[message] = struct{}{}
		g.messages = append(g.messages, message)
	}
	g.errorCount++
	if !g.policy.Enabled || g.autoDisabled || g.errorCount < g.policy.MaxErrorsAllowed {
		g.mu.Unlock()
		return false
	}
	g.disabled = true
	g.autoDisabled = true
	g.autoDisabledAt = g.now()
	messages := g.messages
	g.messages = nil
	g.seen = make(map[string]struct{})
	maxErrors := g.policy.MaxErrorsAllowed
	g.mu.Unlock()
	if g.hooks.Tripped != nil {
		g.hooks.Tripped(maxErrors, messages)
	}
	return true
}

// Disable turns the gate off until Enable or the next recorded success.
// It does not start the reset timer.
func (g *HealthGate) Disable() {
	g.mu.Lock()
	g.disabled = true
	g.autoDisabled = false
	g.mu.Unlock()
}

// Enable re-enables the gate and resets the failure count.
func (g *HealthGate) Enable() {
	g.mu.Lock()
	g.resetLocked()
	g.mu.Unlock()
}

// State returns the current state.
func (g *HealthGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *HealthGate) stateLocked() State {
	switch {
	case g.autoDisabled:
		return StateDisabledAuto
	case g.disabled:
		return StateDisabledManual
	default:
		return StateHealthy
	}
}

// Snapshot is a point-in-time copy of the gate state.
type Snapshot struct {
	State             State
	ConsecutiveErrors int
	AutoDisabledAt    time.Time
	RecentErrors      []string
}

// Snapshot returns the current gate state.
func (g *HealthGate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{
		State:             g.stateLocked(),
		ConsecutiveErrors: g.errorCount,
		RecentErrors:      append([]string(nil), g.messages...),
	}
	if g.autoDisabled {
		s.AutoDisabledAt = g.autoDisabledAt
	}
	return s
}
