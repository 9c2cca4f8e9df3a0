package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hearthwatch/hearthwatch/internal/metrics"
	"github.com/hearthwatch/hearthwatch/internal/statestore"
)

// StateKey is the fixed key under which the current state is persisted.
const StateKey = "hearthwatch:security:state"

// ErrUnknownAction is returned for actions the state machine does not know.
var ErrUnknownAction = errors.New("security: unknown action")

// Manager is the security posture state machine. All state mutation happens
// under a single lock; persistence to the state store happens after the
// lock is released. At most one delayed transition is pending at a time:
// scheduling a new one always cancels the previous timer.
type Manager struct {
	mu      sync.Mutex
	state   State
	pending State // zero value means no pending transition
	timer   *time.Timer

	store    statestore.Store
	settings SettingsSource
	log      *zap.SugaredLogger
	now      func() time.Time
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithNowFunc overrides the clock, for deterministic tests.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a security manager. Call Initialize to recover or
// compute the starting state; construction does no I/O.
func NewManager(store statestore.Store, settings SettingsSource, log *zap.SugaredLogger, opts ...ManagerOption) *Manager {
	m := &Manager{
		state:    StateUnknown,
		store:    store,
		settings: settings,
		log:      log,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Initialize restores a persisted non-auto-changeable state (disabled or
// away survive restarts) or computes the initial state from the configured
// day/night start times.
func (m *Manager) Initialize(ctx context.Context) error {
	settings := m.currentSettings()

	stored, err := m.store.Get(ctx, StateKey)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		m.log.Warnw("security state lookup failed, computing from time of day", "error", err)
	}

	state := automaticStateAt(m.now(), settings)
	if err == nil {
		if restored, ok := ParseState(stored); ok && !restored.AutoChangeAllowed() {
			state = restored
			m.log.Infow("restored persisted security state", "state", state)
		}
	}

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	m.persist(ctx, state)
	return nil
}

// CurrentState returns the current security state.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentLevel returns the alarm-sensitivity level derived from the
// current state.
func (m *Manager) CurrentLevel() Level {
	return m.CurrentState().Level()
}

// PendingState returns the target of the pending delayed transition, or
// false when none is pending.
func (m *Manager) PendingState() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.pending != ""
}

// Apply executes a user-initiated action. Away and snooze move to the
// quiet disabled state immediately and schedule the real target after the
// configured delay.
func (m *Manager) Apply(ctx context.Context, action Action) error {
	settings := m.currentSettings()

	m.mu.Lock()

	var next State
	switch action {
	case ActionDisable:
		next = StateDisabled
	case ActionSetDay:
		next = StateDay
	case ActionSetNight:
		next = StateNight
	case ActionSetAway, ActionSnooze:
		next = StateDisabled
	default:
		// A rejected action must not disturb the current or pending state.
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	m.cancelPendingLocked()

	switch action {
	case ActionSetAway:
		m.scheduleLocked(StateAway, settings.AwayDelay)
	case ActionSnooze:
		// The snooze target allows automation, so a day/night boundary
		// crossed during the snooze window retargets it.
		m.scheduleLocked(automaticStateAt(m.now(), settings), settings.SnoozeDelay)
	}

	changed := m.setStateLocked(next)
	m.mu.Unlock()

	if changed {
		m.persist(ctx, next)
	}
	return nil
}

// CancelPending drops any pending delayed transition.
func (m *Manager) CancelPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPendingLocked()
}

// RunAutoCheck applies time-of-day automation and returns a human-readable
// status string for health reporting. Automation never replaces a sticky
// state and never silently downgrades a pending non-auto transition.
func (m *Manager) RunAutoCheck(ctx context.Context) (string, error) {
	settings := m.currentSettings()
	desired := automaticStateAt(m.now(), settings)

	m.mu.Lock()

	if m.pending != "" {
		if m.pending.AutoChangeAllowed() {
			if m.pending == desired {
				m.mu.Unlock()
				return fmt.Sprintf("No change needed (%s pending)", stateTitle(desired)), nil
			}
			m.pending = desired
			m.mu.Unlock()
			return fmt.Sprintf("Retargeted pending transition to %s", stateTitle(desired)), nil
		}
		pending := m.pending
		m.mu.Unlock()
		return fmt.Sprintf("Auto-change blocked (%s pending)", stateTitle(pending)), nil
	}

	if !m.state.AutoChangeAllowed() {
		state := m.state
		m.mu.Unlock()
		return fmt.Sprintf("Auto-change blocked (%s mode)", stateTitle(state)), nil
	}

	if m.state == desired {
		state := m.state
		m.mu.Unlock()
		return fmt.Sprintf("No change needed (%s mode)", stateTitle(state)), nil
	}

	from := m.state
	m.setStateLocked(desired)
	m.mu.Unlock()

	m.persist(ctx, desired)
	return fmt.Sprintf("Transitioned %s → %s", stateTitle(from), stateTitle(desired)), nil
}

// setStateLocked changes the state and records the transition. Caller
// holds the lock. Returns whether the state actually changed.
func (m *Manager) setStateLocked(to State) bool {
	if m.state == to {
		return false
	}
	from := m.state
	m.state = to
	metrics.SecurityTransition(string(from), string(to))
	m.log.Infow("security state changed", "from", from, "to", to)
	return true
}

// scheduleLocked arms the delayed transition timer. Caller holds the lock
// and has already cancelled any previous pending transition.
func (m *Manager) scheduleLocked(target State, delay time.Duration) {
	m.pending = target
	m.timer = time.AfterFunc(delay, m.firePending)
	m.log.Infow("delayed security transition scheduled", "target", target, "delay", delay)
}

// cancelPendingLocked stops the pending timer, if any. Caller holds the lock.
func (m *Manager) cancelPendingLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pending = ""
}

// firePending runs in the timer goroutine, outside any caller's lock.
func (m *Manager) firePending() {
	m.mu.Lock()
	if m.pending == "" {
		m.mu.Unlock()
		return
	}
	target := m.pending
	m.pending = ""
	m.timer = nil
	changed := m.setStateLocked(target)
	m.mu.Unlock()

	if changed {
		m.persist(context.Background(), target)
	}
}

// persist writes the state to the store. A store failure is a transient
// external condition: it is logged and otherwise ignored.
func (m *Manager) persist(ctx context.Context, state State) {
	if err := m.store.Set(ctx, StateKey, string(state)); err != nil {
		m.log.Errorw("security state persist failed", "state", state, "error", err)
	}
}

// currentSettings fetches settings, falling back to defaults when the
// source is unavailable.
func (m *Manager) currentSettings() *Settings {
	settings, err := m.settings.SecuritySettings()
	if err != nil {
		m.log.Warnw("security settings unavailable, using defaults", "error", err)
		return DefaultSettings()
	}
	return settings
}

// automaticStateAt computes the time-of-day state. Both orderings of the
// day/night boundaries are handled explicitly so an inverted configuration
// (day start after night start) still resolves.
func automaticStateAt(t time.Time, settings *Settings) State {
	hour, minute, sec := t.Clock()
	offset := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(sec)*time.Second

	if settings.DayStart <= settings.NightStart {
		if offset >= settings.DayStart && offset < settings.NightStart {
			return StateDay
		}
		return StateNight
	}

	// Inverted configuration: the "day" span wraps past midnight.
	if offset >= settings.NightStart && offset < settings.DayStart {
		return StateNight
	}
	return StateDay
}

func stateTitle(s State) string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StateDay:
		return "Day"
	case StateNight:
		return "Night"
	case StateAway:
		return "Away"
	default:
		return "Unknown"
	}
}
