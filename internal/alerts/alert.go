package alerts

import (
	"time"

	"github.com/google/uuid"
)

// maxAlarmsPerAlert bounds the per-alert alarm history; the oldest alarm is
// evicted once the bound is reached.
const maxAlarmsPerAlert = 50

// Alert aggregates one or more alarms that share a signature. The first
// alarm fixes the alert's identity and priority; subsequent alarms extend
// its lifetime and are kept in a bounded most-recent-first history.
type Alert struct {
	ID           string
	StartedAt    time.Time
	EndsAt       time.Time
	FirstAlarm   Alarm
	Alarms       []Alarm // newest at index 0
	Acknowledged bool
}

func newAlert(alarm Alarm, now time.Time) *Alert {
	return &Alert{
		ID:         uuid.New().String(),
		StartedAt:  now,
		EndsAt:     now.Add(alarm.Lifetime),
		FirstAlarm: alarm,
		Alarms:     []Alarm{alarm},
	}
}

// addAlarm records a subsequent alarm with the same signature and extends
// the alert's end time to now + the new alarm's lifetime.
func (a *Alert) addAlarm(alarm Alarm, now time.Time) {
	a.Alarms = append([]Alarm{alarm}, a.Alarms...)
	if len(a.Alarms) > maxAlarmsPerAlert {
		a.Alarms = a.Alarms[:maxAlarmsPerAlert]
	}
	a.EndsAt = now.Add(alarm.Lifetime)
}

// LatestAlarm returns the most recently added alarm.
func (a *Alert) LatestAlarm() Alarm {
	return a.Alarms[0]
}

// Signature returns the grouping signature shared by all alarms in the alert.
func (a *Alert) Signature() string {
	return a.FirstAlarm.Signature()
}

// Priority is the alert's rank, fixed by the first alarm's level.
func (a *Alert) Priority() int {
	return a.FirstAlarm.Level.Priority()
}

// snapshot returns a defensive copy safe to hand out without the
// collection lock.
func (a *Alert) snapshot() Alert {
	cp := *a
	cp.Alarms = make([]Alarm, len(a.Alarms))
	copy(cp.Alarms, a.Alarms)
	return cp
}
