package alerts

import (
	"errors"
	"sync"
	"time"
)

// maxAlerts bounds the collection. When full, the oldest alert (by start
// time) is evicted to make room for a new one.
const maxAlerts = 50

var (
	// ErrLevelNone rejects alarms carrying no severity.
	ErrLevelNone = errors.New("alerts: alarm level is none")
	// ErrAlertNotFound is returned when an alert id is unknown.
	ErrAlertNotFound = errors.New("alerts: alert not found")
)

// Collection is a thread-safe bounded set of alerts. A single mutex
// serializes all reads and writes; expected cardinality is tens of alerts,
// so correctness wins over throughput.
//
// Invariant: no two alerts in the collection share a signature. An incoming
// alarm either extends the existing alert for its signature or creates a
// new one.
type Collection struct {
	mu        sync.Mutex
	alerts    []*Alert
	changedAt time.Time
	now       func() time.Time
	onNew     func(Alert)
}

// CollectionOption customizes a Collection.
type CollectionOption func(*Collection)

// WithNowFunc overrides the clock, for deterministic tests.
func WithNowFunc(now func() time.Time) CollectionOption {
	return func(c *Collection) {
		c.now = now
	}
}

// NewCollection creates an empty alert collection.
func NewCollection(opts ...CollectionOption) *Collection {
	c := &Collection{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetNewAlertCallback registers a callback invoked (outside the collection
// lock) whenever a brand-new alert is created. Used to fan out
// notifications.
func (c *Collection) SetNewAlertCallback(fn func(Alert)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNew = fn
}

// AddAlarm routes an alarm into the collection: alarms whose signature
// matches an existing alert extend that alert, others create a new alert.
// Alarms with level none are rejected without mutating any state.
func (c *Collection) AddAlarm(alarm Alarm) (Alert, error) {
	if alarm.Level == LevelNone {
		return Alert{}, ErrLevelNone
	}

	var created Alert
	var notify func(Alert)
	isNew := false

	c.mu.Lock()
	now := c.now()
	signature := alarm.Signature()

	var target *Alert
	for _, a := range c.alerts {
		if a.Signature() == signature {
			target = a
			break
		}
	}

	if target != nil {
		target.addAlarm(alarm, now)
	} else {
		if len(c.alerts) >= maxAlerts {
			c.evictOldestLocked()
		}
		target = newAlert(alarm, now)
		c.alerts = append(c.alerts, target)
		isNew = true
	}

	c.changedAt = now
	created = target.snapshot()
	notify = c.onNew
	c.mu.Unlock()

	if isNew && notify != nil {
		notify(created)
	}

	return created, nil
}

// evictOldestLocked drops the alert with the earliest start time.
// Caller holds the lock.
func (c *Collection) evictOldestLocked() {
	if len(c.alerts) == 0 {
		return
	}
	oldest := 0
	for i, a := range c.alerts {
		if a.StartedAt.Before(c.alerts[oldest].StartedAt) {
			oldest = i
		}
	}
	c.alerts = append(c.alerts[:oldest], c.alerts[oldest+1:]...)
}

// MostImportantAlert returns the highest-priority unacknowledged alert that
// started strictly after since. Ties are broken first-found, which is
// deterministic for a given insertion order.
func (c *Collection) MostImportantAlert(since time.Time) (Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *Alert
	for _, a := range c.alerts {
		if a.Acknowledged || !a.StartedAt.After(since) {
			continue
		}
		if best == nil || a.Priority() > best.Priority() {
			best = a
		}
	}

	if best == nil {
		return Alert{}, false
	}
	return best.snapshot(), true
}

// MostRecentAlarm returns the alarm with the greatest timestamp strictly
// after since, across every alert's latest alarm.
func (c *Collection) MostRecentAlarm(since time.Time) (Alarm, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best Alarm
	found := false
	for _, a := range c.alerts {
		latest := a.LatestAlarm()
		if !latest.Timestamp.After(since) {
			continue
		}
		if !found || latest.Timestamp.After(best.Timestamp) {
			best = latest
			found = true
		}
	}

	return best, found
}

// Acknowledge marks the alert with the given id acknowledged.
func (c *Collection) Acknowledge(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range c.alerts {
		if a.ID == id {
			a.Acknowledged = true
			c.changedAt = c.now()
			return nil
		}
	}
	return ErrAlertNotFound
}

// RemoveFinished prunes alerts that have expired (end time at or before
// now) or were acknowledged. Returns the number removed.
func (c *Collection) RemoveFinished() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	kept := c.alerts[:0]
	removed := 0
	for _, a := range c.alerts {
		if a.Acknowledged || !a.EndsAt.After(now) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	c.alerts = kept
	if removed > 0 {
		c.changedAt = now
	}
	return removed
}

// Alerts returns a snapshot of every alert in insertion order.
func (c *Collection) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Alert, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, a.snapshot())
	}
	return out
}

// Len returns the number of alerts currently held.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

// ChangedAt returns the time of the last mutation.
func (c *Collection) ChangedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changedAt
}
