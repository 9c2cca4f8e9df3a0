// Package intervals implements time-bucketed aggregation of multi-source
// environmental data: a rolling horizon is partitioned into fixed-width
// buckets, and overlapping source intervals are merged into them with
// priority and recency arbitration per field.
package intervals

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval rejects construction of an interval whose start is not
// strictly before its end. This is a programming or configuration error,
// not a runtime condition.
var ErrInvalidInterval = errors.New("intervals: start must be before end")

// TimeInterval is the half-open range [Start, End).
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// NewTimeInterval validates and builds a TimeInterval.
func NewTimeInterval(start, end time.Time) (TimeInterval, error) {
	if !start.Before(end) {
		return TimeInterval{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval, start, end)
	}
	return TimeInterval{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (i TimeInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Contains reports whether t falls inside the interval.
func (i TimeInterval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Overlaps reports whether the two intervals share any time.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// OverlapDuration returns the length of the shared span, or zero when the
// intervals are disjoint.
func (i TimeInterval) OverlapDuration(other TimeInterval) time.Duration {
	start := i.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := i.End
	if other.End.Before(end) {
		end = other.End
	}
	if !start.Before(end) {
		return 0
	}
	return end.Sub(start)
}

// Equal reports whether both endpoints match.
func (i TimeInterval) Equal(other TimeInterval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}

func (i TimeInterval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}
