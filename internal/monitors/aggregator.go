// Package monitors reconciles the open and closed event records a poll
// cycle reports for each physical monitor into a single coherent state.
// Aggregating per monitor (rather than emitting per event) prevents a
// later-processed closed event from overwriting the active state an open
// event already established.
package monitors

import (
	"sort"
	"time"

	"github.com/hearthwatch/hearthwatch/internal/sensors"
)

// State is a monitor's coherent activity state.
type State string

const (
	StateActive State = "active"
	StateIdle   State = "idle"
)

// Event is one open or closed motion/activity record for a monitor, as
// reported by the camera/monitor poller. An event with no end time is
// still in progress.
type Event struct {
	ID        string
	MonitorID string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Open reports whether the event is still in progress.
func (e Event) Open() bool {
	return e.EndedAt == nil
}

// AggregatedState is the reconciled view of one monitor for a poll cycle.
type AggregatedState struct {
	MonitorID string
	State     State
	// EffectiveAt drives sensor-response generation: the earliest open
	// start when active, the latest closed end when idle.
	EffectiveAt time.Time
	// Canonical is the single event chosen to represent the state.
	Canonical Event
	// AllEvents holds every contributing event, sorted ascending by start
	// time, for downstream processed-state bookkeeping.
	AllEvents []Event
}

// Aggregate reconciles one poll cycle's events into per-monitor states.
// Any open event makes the monitor active, anchored at the earliest open
// start (the event that made it active). With no open events the monitor
// is idle as of the latest closed end.
func Aggregate(events []Event) map[string]*AggregatedState {
	byMonitor := make(map[string][]Event)
	for _, e := range events {
		byMonitor[e.MonitorID] = append(byMonitor[e.MonitorID], e)
	}

	states := make(map[string]*AggregatedState, len(byMonitor))
	for monitorID, monitorEvents := range byMonitor {
		state := aggregateMonitor(monitorID, monitorEvents)
		if state != nil {
			states[monitorID] = state
		}
	}
	return states
}

func aggregateMonitor(monitorID string, events []Event) *AggregatedState {
	var earliestOpen *Event
	var latestClosed *Event

	for i := range events {
		e := &events[i]
		if e.Open() {
			if earliestOpen == nil || e.StartedAt.Before(earliestOpen.StartedAt) {
				earliestOpen = e
			}
			continue
		}
		if latestClosed == nil || e.EndedAt.After(*latestClosed.EndedAt) {
			latestClosed = e
		}
	}

	all := make([]Event, len(events))
	copy(all, events)
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.Before(all[j].StartedAt)
	})

	switch {
	case earliestOpen != nil:
		return &AggregatedState{
			MonitorID:   monitorID,
			State:       StateActive,
			EffectiveAt: earliestOpen.StartedAt,
			Canonical:   *earliestOpen,
			AllEvents:   all,
		}
	case latestClosed != nil:
		return &AggregatedState{
			MonitorID:   monitorID,
			State:       StateIdle,
			EffectiveAt: *latestClosed.EndedAt,
			Canonical:   *latestClosed,
			AllEvents:   all,
		}
	default:
		return nil
	}
}

// Response produces the sensor-response value object for downstream
// display and state tracking.
func (s *AggregatedState) Response() sensors.Response {
	return sensors.Response{
		IntegrationKey: s.MonitorID,
		Value:          string(s.State),
		Timestamp:      s.EffectiveAt,
	}
}

// OpenEventIDs returns the ids of still-open contributing events.
func (s *AggregatedState) OpenEventIDs() []string {
	var ids []string
	for _, e := range s.AllEvents {
		if e.Open() {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// ClosedEventIDs returns the ids of completed contributing events.
func (s *AggregatedState) ClosedEventIDs() []string {
	var ids []string
	for _, e := range s.AllEvents {
		if !e.Open() {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
