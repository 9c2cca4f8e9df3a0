// Package events implements the sliding-window multi-clause rule engine.
// Entity-state transitions stream in, definitions are matched against the
// recent window, matches are deduplicated per definition, and resulting
// events fan out to alarms, controls and history.
package events

import (
	"time"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/security"
	"github.com/hearthwatch/hearthwatch/internal/sensors"
)

// Global bounds on definition windows. They cap how long transitions must
// be retained, which bounds the queue's memory.
const (
	MaxEventWindow  = 5 * time.Minute
	MaxDedupeWindow = time.Hour
)

// Clause is one condition of a definition: the named entity state must
// currently hold the expected value.
type Clause struct {
	StateKey      string
	ExpectedValue string
}

// AlarmAction raises an alarm when its security level matches the system's
// current level at detection time.
type AlarmAction struct {
	SecurityLevel security.Level
	AlarmLevel    alerts.Level
	Lifetime      time.Duration
}

// ControlAction applies a value to a controller when the definition fires.
type ControlAction struct {
	ControllerKey string
	Value         string
}

// Definition is one configured detection rule. All clauses must match
// within EventWindow for the definition to fire; DedupeWindow is the
// minimum gap before it may fire again.
type Definition struct {
	ID             uint
	Name           string
	EventWindow    time.Duration
	DedupeWindow   time.Duration
	Enabled        bool
	Clauses        []Clause
	AlarmActions   []AlarmAction
	ControlActions []ControlAction
}

// clampWindows enforces the global maxima.
func (d *Definition) clampWindows() {
	if d.EventWindow <= 0 || d.EventWindow > MaxEventWindow {
		d.EventWindow = MaxEventWindow
	}
	if d.DedupeWindow <= 0 || d.DedupeWindow > MaxDedupeWindow {
		d.DedupeWindow = MaxDedupeWindow
	}
}

// Transition is one observed entity-state change: the latest sensed value
// plus the value it replaced. Transitions are ephemeral; they live in the
// manager's queue until they age out of the maximum event window.
type Transition struct {
	Latest   sensors.Response
	Previous string
}

// Event is a definition that fully matched, together with the sensor
// response that satisfied each clause. Immutable once created.
type Event struct {
	Definition *Definition
	Responses  []sensors.Response
}

// Timestamp is the event's effective time: the newest contributing response.
func (e Event) Timestamp() time.Time {
	var ts time.Time
	for _, r := range e.Responses {
		if r.Timestamp.After(ts) {
			ts = r.Timestamp
		}
	}
	return ts
}

// HistoryRecord is the persistence shape for one fired event.
type HistoryRecord struct {
	DefinitionID   uint
	DefinitionName string
	OccurredAt     time.Time
}
