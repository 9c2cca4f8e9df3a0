// Package alerts implements alarm aggregation: raw alarms are grouped by
// signature into a bounded collection of alerts with an acknowledge/expire
// lifecycle.
package alerts

import (
	"fmt"
	"time"

	"github.com/hearthwatch/hearthwatch/internal/security"
)

// Level is the severity of an alarm. The numeric value doubles as the
// priority used to rank alerts.
type Level int

const (
	LevelNone     Level = 0
	LevelInfo     Level = 10
	LevelWarning  Level = 100
	LevelCritical Level = 1000
)

// Priority returns the numeric rank of the level.
func (l Level) Priority() int {
	return int(l)
}

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "none"
	}
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "none":
		return LevelNone, true
	case "info":
		return LevelInfo, true
	case "warning":
		return LevelWarning, true
	case "critical":
		return LevelCritical, true
	default:
		return LevelNone, false
	}
}

// Source identifies the subsystem that raised an alarm.
type Source string

const (
	SourceEvent   Source = "event"
	SourceMonitor Source = "monitor"
	SourceSystem  Source = "system"
)

// SourceDetail is one contributing reading attached to an alarm.
type SourceDetail struct {
	IntegrationKey string
	Value          string
}

// Alarm is a single raw notable occurrence. Alarms are immutable values:
// detectors create them and alerts reference them, nothing mutates them.
type Alarm struct {
	Source        Source
	Type          string
	Level         Level
	Title         string
	Details       []SourceDetail
	SecurityLevel security.Level
	Lifetime      time.Duration
	Timestamp     time.Time
}

// Signature is the grouping key for alarms: alarms with equal signatures
// aggregate into the same alert.
func (a Alarm) Signature() string {
	return fmt.Sprintf("%s.%s.%s", a.Source, a.Type, a.Level)
}
