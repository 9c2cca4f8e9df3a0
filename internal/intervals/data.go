package intervals

import (
	"errors"
	"time"
)

// ErrEmptyFieldValue rejects a field that carries no value at all.
var ErrEmptyFieldValue = errors.New("intervals: field value carries no data")

// FieldValue is one typed datum for a named field. Exactly one of the
// pointers is set.
type FieldValue struct {
	Numeric *float64
	Text    *string
	Flag    *bool
	Moment  *time.Time
}

// NumericValue builds a numeric field value.
func NumericValue(v float64) FieldValue {
	return FieldValue{Numeric: &v}
}

// TextValue builds a string field value.
func TextValue(v string) FieldValue {
	return FieldValue{Text: &v}
}

// FlagValue builds a boolean field value.
func FlagValue(v bool) FieldValue {
	return FieldValue{Flag: &v}
}

// MomentValue builds a time-valued field value.
func MomentValue(v time.Time) FieldValue {
	return FieldValue{Moment: &v}
}

// IsEmpty reports whether no value was supplied at all.
func (v FieldValue) IsEmpty() bool {
	return v.Numeric == nil && v.Text == nil && v.Flag == nil && v.Moment == nil
}

// Source identifies one data provider. Lower Priority numbers outrank
// higher ones.
type Source struct {
	ID       string
	Priority int
}

// SourceInterval is one already-parsed data record covering a time range,
// as delivered by an external provider client.
type SourceInterval struct {
	Interval   TimeInterval
	SourceTime time.Time
	Fields     map[string]FieldValue
}

// fieldOwner tracks which source currently owns a bucket field's value,
// enabling arbitration of later updates without full history.
type fieldOwner struct {
	sourceID   string
	priority   int
	sourceTime time.Time
}

// Bucket is one fixed-width slice of the horizon with its aggregated data.
type Bucket struct {
	Interval TimeInterval
	Fields   map[string]FieldValue

	owners map[string]fieldOwner
}

func newBucket(interval TimeInterval) *Bucket {
	return &Bucket{
		Interval: interval,
		Fields:   make(map[string]FieldValue),
		owners:   make(map[string]fieldOwner),
	}
}

// FieldSource reports which source currently owns a field's value and when
// that source produced it.
func (b *Bucket) FieldSource(field string) (sourceID string, sourceTime time.Time, ok bool) {
	owner, ok := b.owners[field]
	if !ok {
		return "", time.Time{}, false
	}
	return owner.sourceID, owner.sourceTime, true
}

// snapshot returns a copy safe to hand out without the manager lock.
func (b *Bucket) snapshot() Bucket {
	fields := make(map[string]FieldValue, len(b.Fields))
	for k, v := range b.Fields {
		fields[k] = v
	}
	return Bucket{Interval: b.Interval, Fields: fields}
}
