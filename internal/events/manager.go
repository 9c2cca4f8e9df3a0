package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/cache"
	"github.com/hearthwatch/hearthwatch/internal/controls"
	"github.com/hearthwatch/hearthwatch/internal/metrics"
	"github.com/hearthwatch/hearthwatch/internal/security"
	"github.com/hearthwatch/hearthwatch/internal/sensors"
)

// DefinitionSource supplies the enabled definitions, typically backed by
// the database. The manager caches the list and reloads it only on an
// explicit reload signal.
type DefinitionSource interface {
	EnabledDefinitions() ([]*Definition, error)
}

// AlarmSink receives alarms synthesized from fired events.
type AlarmSink interface {
	AddAlarm(alarm alerts.Alarm) (alerts.Alert, error)
}

// HistoryWriter bulk-persists fired events.
type HistoryWriter interface {
	WriteEventHistory(records []HistoryRecord) error
}

// LevelSource reports the system's current security level.
type LevelSource interface {
	CurrentLevel() security.Level
}

// Manager is the event detection engine. Detection is side-effect-free and
// runs entirely in memory under the manager's lock; alarm/control/history
// dispatch happens after the lock is released, once per new event.
type Manager struct {
	mu        sync.Mutex
	queue     []Transition
	defs      []*Definition
	maxWindow time.Duration

	source   DefinitionSource
	dedupe   *cache.Cache[time.Time]
	alarms   AlarmSink
	controls controls.Dispatcher
	levels   LevelSource
	history  HistoryWriter

	log *zap.SugaredLogger
	now func() time.Time
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithNowFunc overrides the clock, for deterministic tests.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an event manager. Call Initialize before feeding
// transitions; construction itself does no I/O.
func NewManager(
	source DefinitionSource,
	alarms AlarmSink,
	dispatcher controls.Dispatcher,
	levels LevelSource,
	history HistoryWriter,
	log *zap.SugaredLogger,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		source:    source,
		alarms:    alarms,
		controls:  dispatcher,
		levels:    levels,
		history:   history,
		maxWindow: MaxEventWindow,
		log:       log,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.dedupe = cache.New(MaxDedupeWindow, time.Minute, cache.WithNowFunc[time.Time](m.now))

	return m
}

// Initialize loads the definition cache. Idempotent; intended to be called
// once at composition time.
func (m *Manager) Initialize() error {
	return m.ReloadDefinitions()
}

// Close stops the dedupe cache's background cleanup.
func (m *Manager) Close() {
	m.dedupe.Stop()
}

// ReloadDefinitions refreshes the cached definition list. Invoked after
// configuration edits; detection keeps using the previous list until a
// reload succeeds.
func (m *Manager) ReloadDefinitions() error {
	defs, err := m.source.EnabledDefinitions()
	if err != nil {
		return fmt.Errorf("reload event definitions: %w", err)
	}

	maxWindow := time.Duration(0)
	for _, d := range defs {
		d.clampWindows()
		if d.EventWindow > maxWindow {
			maxWindow = d.EventWindow
		}
	}
	if maxWindow == 0 {
		maxWindow = MaxEventWindow
	}

	m.mu.Lock()
	m.defs = defs
	m.maxWindow = maxWindow
	m.mu.Unlock()

	m.log.Infow("event definitions reloaded", "count", len(defs))
	return nil
}

// AddTransitions ingests one batch of entity-state transitions, runs
// detection over the refreshed window, dispatches actions for every newly
// fired event and persists history records. The fired events are returned
// in definition order.
func (m *Manager) AddTransitions(ctx context.Context, batch []Transition) ([]Event, error) {
	newEvents := m.detectBatch(batch)
	if len(newEvents) == 0 {
		return nil, nil
	}

	m.dispatch(ctx, newEvents)

	return newEvents, nil
}

// detectBatch appends the batch, purges stale transitions and evaluates
// every definition in configuration order. It mutates only in-memory state
// so a crash between detection and dispatch can be recovered by re-running
// detection over the same window.
func (m *Manager) detectBatch(batch []Transition) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.queue = append(m.queue, batch...)
	m.purgeLocked(now)

	var fired []Event
	for _, def := range m.defs {
		if !def.Enabled {
			continue
		}
		if m.dedupe.Contains(dedupeKey(def.ID)) {
			continue
		}

		event, ok := m.match(def, now)
		if !ok {
			continue
		}

		m.dedupe.SetWithTTL(dedupeKey(def.ID), now, def.DedupeWindow)
		fired = append(fired, event)
		metrics.EventFired(def.Name)
	}

	return fired
}

// purgeLocked trims transitions older than the maximum event window from
// the head of the queue. The queue is time-ordered by arrival, so the purge
// is a prefix trim.
func (m *Manager) purgeLocked(now time.Time) {
	cutoff := now.Add(-m.maxWindow)
	firstLive := len(m.queue)
	for i, tr := range m.queue {
		if tr.Latest.Timestamp.After(cutoff) {
			firstLive = i
			break
		}
	}
	m.queue = m.queue[firstLive:]
}

// match attempts detection for one definition: every clause needs a
// transition whose entity state matches, whose latest value equals the
// expected value and whose age is within the definition's event window.
// Among multiple candidates for a clause, the most recent transition wins.
func (m *Manager) match(def *Definition, now time.Time) (Event, bool) {
	cutoff := now.Add(-def.EventWindow)
	responses := make([]sensors.Response, 0, len(def.Clauses))

	for _, clause := range def.Clauses {
		var best sensors.Response
		found := false
		for _, tr := range m.queue {
			if tr.Latest.IntegrationKey != clause.StateKey {
				continue
			}
			if tr.Latest.Value != clause.ExpectedValue {
				continue
			}
			if tr.Latest.Timestamp.Before(cutoff) {
				continue
			}
			if !found || tr.Latest.Timestamp.After(best.Timestamp) {
				best = tr.Latest
				found = true
			}
		}
		if !found {
			return Event{}, false
		}
		responses = append(responses, best)
	}

	return Event{Definition: def, Responses: responses}, true
}

// dispatch performs the non-idempotent action phase: alarms for actions
// matching the current security level, asynchronous control invocations,
// then a bulk history write. Failures are isolated per action and logged;
// they never abort sibling actions or the history write.
func (m *Manager) dispatch(ctx context.Context, newEvents []Event) {
	currentLevel := m.levels.CurrentLevel()
	records := make([]HistoryRecord, 0, len(newEvents))

	for _, event := range newEvents {
		def := event.Definition
		m.log.Infow("event detected", "definition", def.Name, "responses", len(event.Responses))

		for _, action := range def.AlarmActions {
			if action.SecurityLevel != currentLevel {
				continue
			}
			alarm := m.buildAlarm(event, action, currentLevel)
			if _, err := m.alarms.AddAlarm(alarm); err != nil {
				m.log.Errorw("alarm dispatch failed", "definition", def.Name, "error", err)
				continue
			}
			metrics.AlarmRaised(alarm.Level.String())
		}

		for _, action := range def.ControlActions {
			go m.invokeControl(ctx, def.Name, action)
		}

		records = append(records, HistoryRecord{
			DefinitionID:   def.ID,
			DefinitionName: def.Name,
			OccurredAt:     event.Timestamp(),
		})
	}

	if m.history != nil && len(records) > 0 {
		if err := m.history.WriteEventHistory(records); err != nil {
			m.log.Errorw("event history write failed", "records", len(records), "error", err)
		}
	}
}

// buildAlarm synthesizes the alarm for one alarm action of a fired event.
func (m *Manager) buildAlarm(event Event, action AlarmAction, level security.Level) alerts.Alarm {
	details := make([]alerts.SourceDetail, 0, len(event.Responses))
	for _, r := range event.Responses {
		details = append(details, alerts.SourceDetail{
			IntegrationKey: r.IntegrationKey,
			Value:          r.Value,
		})
	}

	return alerts.Alarm{
		Source:        alerts.SourceEvent,
		Type:          event.Definition.Name,
		Level:         action.AlarmLevel,
		Title:         event.Definition.Name,
		Details:       details,
		SecurityLevel: level,
		Lifetime:      action.Lifetime,
		Timestamp:     event.Timestamp(),
	}
}

// invokeControl runs one control action, isolating panics and errors.
func (m *Manager) invokeControl(ctx context.Context, definition string, action ControlAction) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("control dispatch panicked",
				"definition", definition, "controller", action.ControllerKey, "panic", r)
		}
	}()

	if err := m.controls.Dispatch(ctx, action.ControllerKey, action.Value); err != nil {
		m.log.Errorw("control dispatch failed",
			"definition", definition, "controller", action.ControllerKey, "error", err)
	}
}

// QueueLen reports the number of retained transitions.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func dedupeKey(definitionID uint) string {
	return "event-definition:" + strconv.FormatUint(uint64(definitionID), 10)
}
