package intervals

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Order controls how the horizon's buckets are laid out.
type Order int

const (
	// Ascending lays buckets forward from the current boundary (forecasts).
	Ascending Order = iota
	// Descending lays buckets backward from the current boundary, newest
	// first (history).
	Descending
)

// DefaultStaleness is how old a higher-priority value must be before a
// lower-priority source may overwrite it.
const DefaultStaleness = 6 * time.Hour

// Manager owns an ordered list of buckets covering a sliding horizon. The
// bucket list regenerates whenever the current time crosses a bucket
// boundary: buckets that fall outside the new window are discarded and
// fresh empty ones are created for newly-included ranges.
type Manager struct {
	mu        sync.Mutex
	width     time.Duration
	count     int
	order     Order
	staleness time.Duration
	buckets   []*Bucket
	floor     time.Time

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

// WithStaleness overrides the staleness threshold.
func WithStaleness(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.staleness = d
	}
}

// NewManager creates a bucket manager with count buckets of the given
// width.
func NewManager(width time.Duration, count int, order Order, log *zap.SugaredLogger, opts ...ManagerOption) (*Manager, error) {
	if width <= 0 {
		return nil, fmt.Errorf("intervals: bucket width must be positive, got %s", width)
	}
	if count <= 0 {
		return nil, fmt.Errorf("intervals: bucket count must be positive, got %d", count)
	}

	m := &Manager{
		width:     width,
		count:     count,
		order:     order,
		staleness: DefaultStaleness,
		log:       log,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Initialize builds the initial bucket list. Idempotent.
func (m *Manager) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLocked(m.now())
}

// ensureLocked regenerates the bucket list when the current time has
// crossed the first bucket's boundary. State for buckets whose interval is
// still inside the window is carried over.
func (m *Manager) ensureLocked(now time.Time) {
	floor := now.Truncate(m.width)
	if len(m.buckets) > 0 && floor.Equal(m.floor) {
		return
	}

	existing := make(map[time.Time]*Bucket, len(m.buckets))
	for _, b := range m.buckets {
		existing[b.Interval.Start.UTC()] = b
	}

	buckets := make([]*Bucket, 0, m.count)
	for i := 0; i < m.count; i++ {
		var start time.Time
		if m.order == Ascending {
			start = floor.Add(time.Duration(i) * m.width)
		} else {
			start = floor.Add(-time.Duration(i+1) * m.width)
		}
		interval := TimeInterval{Start: start, End: start.Add(m.width)}

		if prev, ok := existing[start.UTC()]; ok && prev.Interval.Equal(interval) {
			buckets = append(buckets, prev)
			continue
		}
		buckets = append(buckets, newBucket(interval))
	}

	m.buckets = buckets
	m.floor = floor
}

// AddData merges one source's interval data into every overlapping bucket.
// Per field, the decision to overwrite is: higher source priority always
// wins; equal priority falls back to the more recent source time; a value
// set by a higher-priority source is only replaced by a lower-priority one
// once it is older than the staleness threshold.
func (m *Manager) AddData(source Source, data []SourceInterval) error {
	for _, item := range data {
		if !item.Interval.Start.Before(item.Interval.End) {
			return fmt.Errorf("%w: %s", ErrInvalidInterval, item.Interval)
		}
		for field, value := range item.Fields {
			if value.IsEmpty() {
				return fmt.Errorf("%w: field %q from source %q", ErrEmptyFieldValue, field, source.ID)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.ensureLocked(now)

	for _, bucket := range m.buckets {
		m.mergeBucketLocked(bucket, source, data, now)
	}

	return nil
}

// fieldContribution is one source interval's share of a bucket field.
type fieldContribution struct {
	value      FieldValue
	overlap    time.Duration
	sourceTime time.Time
}

func (m *Manager) mergeBucketLocked(bucket *Bucket, source Source, data []SourceInterval, now time.Time) {
	contributions := make(map[string][]fieldContribution)
	for _, item := range data {
		overlap := bucket.Interval.OverlapDuration(item.Interval)
		if overlap <= 0 {
			continue
		}
		for field, value := range item.Fields {
			contributions[field] = append(contributions[field], fieldContribution{
				value:      value,
				overlap:    overlap,
				sourceTime: item.SourceTime,
			})
		}
	}

	for field, contribs := range contributions {
		value, sourceTime := combine(contribs)

		owner, owned := bucket.owners[field]
		if owned && !m.shouldOverwrite(owner, source, sourceTime, now) {
			continue
		}

		bucket.Fields[field] = value
		bucket.owners[field] = fieldOwner{
			sourceID:   source.ID,
			priority:   source.Priority,
			sourceTime: sourceTime,
		}
	}
}

// shouldOverwrite arbitrates an incoming field value against the current
// owner.
func (m *Manager) shouldOverwrite(owner fieldOwner, source Source, sourceTime, now time.Time) bool {
	switch {
	case source.Priority < owner.priority:
		return true
	case source.Priority == owner.priority:
		return sourceTime.After(owner.sourceTime)
	default:
		// Lower-priority source: only replace a stale value.
		return now.Sub(owner.sourceTime) > m.staleness
	}
}

// combine folds multiple partial-overlap contributions into one value.
// Numeric fields use the overlap-duration-weighted mean; other kinds take
// the contribution with the greatest overlap. The reported source time is
// the newest among contributors.
func combine(contribs []fieldContribution) (FieldValue, time.Time) {
	var newest time.Time
	for _, c := range contribs {
		if c.sourceTime.After(newest) {
			newest = c.sourceTime
		}
	}

	if contribs[0].value.Numeric != nil {
		var weightedSum, totalWeight float64
		for _, c := range contribs {
			if c.value.Numeric == nil {
				continue
			}
			w := c.overlap.Seconds()
			weightedSum += *c.value.Numeric * w
			totalWeight += w
		}
		if totalWeight > 0 {
			return NumericValue(weightedSum / totalWeight), newest
		}
	}

	best := contribs[0]
	for _, c := range contribs[1:] {
		if c.overlap > best.overlap ||
			(c.overlap == best.overlap && c.sourceTime.After(best.sourceTime)) {
			best = c
		}
	}
	return best.value, newest
}

// Buckets returns a snapshot of the current horizon, refreshed to the
// current time.
func (m *Manager) Buckets() []Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureLocked(m.now())

	out := make([]Bucket, 0, len(m.buckets))
	for _, b := range m.buckets {
		out = append(out, b.snapshot())
	}
	return out
}

// FieldSource reports the owning source of a field in the bucket covering
// t, for arbitration inspection.
func (m *Manager) FieldSource(t time.Time, field string) (string, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.buckets {
		if b.Interval.Contains(t) {
			return b.FieldSource(field)
		}
	}
	return "", time.Time{}, false
}
