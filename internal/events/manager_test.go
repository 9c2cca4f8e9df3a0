package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/logger"
	"github.com/hearthwatch/hearthwatch/internal/security"
	"github.com/hearthwatch/hearthwatch/internal/sensors"
)

type stubSource struct {
	defs []*Definition
	err  error
}

func (s *stubSource) EnabledDefinitions() ([]*Definition, error) {
	return s.defs, s.err
}

type captureSink struct {
	mu     sync.Mutex
	alarms []alerts.Alarm
	err    error
}

func (s *captureSink) AddAlarm(alarm alerts.Alarm) (alerts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return alerts.Alert{}, s.err
	}
	s.alarms = append(s.alarms, alarm)
	return alerts.Alert{}, nil
}

func (s *captureSink) received() []alerts.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alerts.Alarm, len(s.alarms))
	copy(out, s.alarms)
	return out
}

type captureDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (d *captureDispatcher) Dispatch(_ context.Context, controllerKey, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, controllerKey+"="+value)
	return nil
}

func (d *captureDispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type stubLevels struct {
	level security.Level
}

func (s *stubLevels) CurrentLevel() security.Level {
	return s.level
}

type captureHistory struct {
	mu      sync.Mutex
	records []HistoryRecord
	err     error
}

func (h *captureHistory) WriteEventHistory(records []HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, records...)
	return nil
}

type testHarness struct {
	manager    *Manager
	sink       *captureSink
	dispatcher *captureDispatcher
	history    *captureHistory
	now        time.Time
}

func newHarness(t *testing.T, defs ...*Definition) *testHarness {
	t.Helper()

	h := &testHarness{
		sink:       &captureSink{},
		dispatcher: &captureDispatcher{},
		history:    &captureHistory{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.manager = NewManager(
		&stubSource{defs: defs},
		h.sink,
		h.dispatcher,
		&stubLevels{level: security.LevelHigh},
		h.history,
		logger.Nop(),
		WithNowFunc(func() time.Time { return h.now }),
	)
	require.NoError(t, h.manager.Initialize())
	t.Cleanup(h.manager.Close)
	return h
}

func (h *testHarness) transition(key, value string, age time.Duration) Transition {
	return Transition{
		Latest: sensors.Response{
			IntegrationKey: key,
			Value:          value,
			Timestamp:      h.now.Add(-age),
		},
	}
}

func doorOpenDefinition() *Definition {
	return &Definition{
		ID:           1,
		Name:         "door-open",
		EventWindow:  2 * time.Minute,
		DedupeWindow: 5 * time.Minute,
		Enabled:      true,
		Clauses:      []Clause{{StateKey: "sensor.door", ExpectedValue: "open"}},
		AlarmActions: []AlarmAction{{
			SecurityLevel: security.LevelHigh,
			AlarmLevel:    alerts.LevelWarning,
			Lifetime:      10 * time.Minute,
		}},
	}
}

func TestSingleClauseFiresOnce(t *testing.T) {
	h := newHarness(t, doorOpenDefinition())
	ctx := context.Background()

	fired, err := h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "door-open", fired[0].Definition.Name)

	alarms := h.sink.received()
	require.Len(t, alarms, 1)
	assert.Equal(t, alerts.SourceEvent, alarms[0].Source)
	assert.Equal(t, "door-open", alarms[0].Type)
	assert.Equal(t, alerts.LevelWarning, alarms[0].Level)
	assert.Equal(t, security.LevelHigh, alarms[0].SecurityLevel)
}

func TestDedupeWindowSuppressesRefire(t *testing.T) {
	h := newHarness(t, doorOpenDefinition())
	ctx := context.Background()

	fired, err := h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	// Inside the dedupe window: the matching transition must not re-fire.
	h.now = h.now.Add(time.Minute)
	fired, err = h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	assert.Empty(t, fired)

	// Past the dedupe window it fires again.
	h.now = h.now.Add(5 * time.Minute)
	fired, err = h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
}

func TestValueMismatchDoesNotFire(t *testing.T) {
	h := newHarness(t, doorOpenDefinition())

	fired, err := h.manager.AddTransitions(context.Background(),
		[]Transition{h.transition("sensor.door", "closed", 0)})
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Empty(t, h.sink.received())
}

func TestMultiClauseRequiresEveryClause(t *testing.T) {
	def := &Definition{
		ID:           2,
		Name:         "night-entry",
		EventWindow:  2 * time.Minute,
		DedupeWindow: 5 * time.Minute,
		Enabled:      true,
		Clauses: []Clause{
			{StateKey: "sensor.door", ExpectedValue: "open"},
			{StateKey: "sensor.motion", ExpectedValue: "detected"},
		},
	}
	h := newHarness(t, def)
	ctx := context.Background()

	fired, err := h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	assert.Empty(t, fired, "one of two clauses is not enough")

	fired, err = h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.motion", "detected", 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1, "the earlier transition completes the match")
	assert.Len(t, fired[0].Responses, 2)
}

func TestClauseOutsideEventWindowDoesNotMatch(t *testing.T) {
	def := &Definition{
		ID:           3,
		Name:         "night-entry",
		EventWindow:  time.Minute,
		DedupeWindow: 5 * time.Minute,
		Enabled:      true,
		Clauses: []Clause{
			{StateKey: "sensor.door", ExpectedValue: "open"},
			{StateKey: "sensor.motion", ExpectedValue: "detected"},
		},
	}
	h := newHarness(t, def)

	fired, err := h.manager.AddTransitions(context.Background(), []Transition{
		h.transition("sensor.door", "open", 90*time.Second), // stale
		h.transition("sensor.motion", "detected", 0),
	})
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestMostRecentTransitionSatisfiesClause(t *testing.T) {
	h := newHarness(t, doorOpenDefinition())

	fired, err := h.manager.AddTransitions(context.Background(), []Transition{
		h.transition("sensor.door", "open", 90*time.Second),
		h.transition("sensor.door", "open", 10*time.Second),
	})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Len(t, fired[0].Responses, 1)
	assert.Equal(t, h.now.Add(-10*time.Second), fired[0].Responses[0].Timestamp)
}

func TestDisabledDefinitionIsSkipped(t *testing.T) {
	def := doorOpenDefinition()
	def.Enabled = false
	h := newHarness(t, def)

	fired, err := h.manager.AddTransitions(context.Background(),
		[]Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestAlarmActionFiltersBySecurityLevel(t *testing.T) {
	def := doorOpenDefinition()
	def.AlarmActions = []AlarmAction{
		{SecurityLevel: security.LevelLow, AlarmLevel: alerts.LevelInfo, Lifetime: time.Minute},
		{SecurityLevel: security.LevelHigh, AlarmLevel: alerts.LevelCritical, Lifetime: time.Minute},
	}
	h := newHarness(t, def)

	fired, err := h.manager.AddTransitions(context.Background(),
		[]Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	alarms := h.sink.received()
	require.Len(t, alarms, 1, "only the action matching the current level dispatches")
	assert.Equal(t, alerts.LevelCritical, alarms[0].Level)
}

func TestControlActionsDispatchAsynchronously(t *testing.T) {
	def := doorOpenDefinition()
	def.ControlActions = []ControlAction{
		{ControllerKey: "light.porch", Value: "on"},
		{ControllerKey: "siren.main", Value: "on"},
	}
	h := newHarness(t, def)

	_, err := h.manager.AddTransitions(context.Background(),
		[]Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.dispatcher.len() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestAlarmSinkFailureDoesNotAbortHistory(t *testing.T) {
	h := newHarness(t, doorOpenDefinition())
	h.sink.err = errors.New("collection unavailable")

	fired, err := h.manager.AddTransitions(context.Background(),
		[]Transition{h.transition("sensor.door", "open", 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	h.history.mu.Lock()
	defer h.history.mu.Unlock()
	require.Len(t, h.history.records, 1)
	assert.Equal(t, "door-open", h.history.records[0].DefinitionName)
}

func TestHistoryRecordsCarryEventTimestamp(t *testing.T) {
	h := newHarness(t, doorOpenDefinition())

	_, err := h.manager.AddTransitions(context.Background(),
		[]Transition{h.transition("sensor.door", "open", 30*time.Second)})
	require.NoError(t, err)

	h.history.mu.Lock()
	defer h.history.mu.Unlock()
	require.Len(t, h.history.records, 1)
	assert.Equal(t, h.now.Add(-30*time.Second), h.history.records[0].OccurredAt)
}

func TestStaleTransitionsArePurged(t *testing.T) {
	h := newHarness(t, doorOpenDefinition())
	ctx := context.Background()

	_, err := h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.door", "closed", 0)})
	require.NoError(t, err)
	require.Equal(t, 1, h.manager.QueueLen())

	// Past the retention window every old transition drops out.
	h.now = h.now.Add(MaxEventWindow + time.Minute)
	_, err = h.manager.AddTransitions(ctx, []Transition{h.transition("sensor.motion", "clear", 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, h.manager.QueueLen())
}

func TestReloadDefinitionsClampsWindows(t *testing.T) {
	def := doorOpenDefinition()
	def.EventWindow = time.Hour
	def.DedupeWindow = 48 * time.Hour
	newHarness(t, def)

	assert.Equal(t, MaxEventWindow, def.EventWindow)
	assert.Equal(t, MaxDedupeWindow, def.DedupeWindow)
}

func TestReloadFailureKeepsPreviousDefinitions(t *testing.T) {
	source := &stubSource{defs: []*Definition{doorOpenDefinition()}}
	sink := &captureSink{}
	m := NewManager(source, sink, &captureDispatcher{}, &stubLevels{level: security.LevelHigh}, nil, logger.Nop())
	require.NoError(t, m.Initialize())
	t.Cleanup(m.Close)

	source.err = errors.New("db down")
	require.Error(t, m.ReloadDefinitions())

	// The previous definition list still drives detection.
	fired, err := m.AddTransitions(context.Background(), []Transition{{
		Latest: sensors.Response{IntegrationKey: "sensor.door", Value: "open", Timestamp: time.Now()},
	}})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
}

func TestMultiClauseFiringRequiresEachTransition(t *testing.T) {
	newDef := func() *Definition {
		return &Definition{
			ID:           4,
			Name:         "night-entry",
			EventWindow:  2 * time.Minute,
			DedupeWindow: 5 * time.Minute,
			Enabled:      true,
			Clauses: []Clause{
				{StateKey: "sensor.door", ExpectedValue: "open"},
				{StateKey: "sensor.motion", ExpectedValue: "detected"},
			},
		}
	}

	full := []struct {
		key   string
		value string
	}{
		{"sensor.door", "open"},
		{"sensor.motion", "detected"},
	}

	// Dropping any single qualifying transition must prevent the firing.
	for drop := range full {
		h := newHarness(t, newDef())
		var batch []Transition
		for i, tr := range full {
			if i == drop {
				continue
			}
			batch = append(batch, h.transition(tr.key, tr.value, 0))
		}

		fired, err := h.manager.AddTransitions(context.Background(), batch)
		require.NoError(t, err)
		assert.Empty(t, fired, "missing clause %d", drop)
	}

	// The complete set fires exactly once.
	h := newHarness(t, newDef())
	var batch []Transition
	for _, tr := range full {
		batch = append(batch, h.transition(tr.key, tr.value, 0))
	}
	fired, err := h.manager.AddTransitions(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, fired, 1)
}

func TestDetectionScenarioEndToEnd(t *testing.T) {
	def := &Definition{
		ID:           5,
		Name:         "intrusion",
		EventWindow:  2 * time.Minute,
		DedupeWindow: 5 * time.Minute,
		Enabled:      true,
		Clauses: []Clause{
			{StateKey: "s1", ExpectedValue: "on"},
			{StateKey: "s2", ExpectedValue: "detected"},
		},
	}
	h := newHarness(t, def)
	ctx := context.Background()
	start := h.now

	// First clause arrives alone: nothing fires.
	fired, err := h.manager.AddTransitions(ctx, []Transition{h.transition("s1", "on", 0)})
	require.NoError(t, err)
	require.Empty(t, fired)

	// Second clause thirty seconds later completes the match.
	h.now = start.Add(30 * time.Second)
	fired, err = h.manager.AddTransitions(ctx, []Transition{h.transition("s2", "detected", 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Len(t, fired[0].Responses, 2)
	assert.Equal(t, h.now, fired[0].Timestamp())

	// A fresh qualifying pair inside the dedupe window stays silent.
	h.now = start.Add(4 * time.Minute)
	fired, err = h.manager.AddTransitions(ctx, []Transition{
		h.transition("s1", "on", 0),
		h.transition("s2", "detected", 0),
	})
	require.NoError(t, err)
	require.Empty(t, fired)

	// Once the dedupe window has elapsed it fires again.
	h.now = start.Add(6 * time.Minute)
	fired, err = h.manager.AddTransitions(ctx, []Transition{
		h.transition("s1", "on", 0),
		h.transition("s2", "detected", 0),
	})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
}

func TestEventTimestampIsNewestResponse(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Event{
		Definition: doorOpenDefinition(),
		Responses: []sensors.Response{
			{IntegrationKey: "a", Timestamp: base},
			{IntegrationKey: "b", Timestamp: base.Add(time.Minute)},
		},
	}
	assert.Equal(t, base.Add(time.Minute), e.Timestamp())
}
