package security

import "time"

// Fallback values used when the configured settings are missing or
// malformed.
const (
	DefaultAwayDelay   = 10 * time.Minute
	DefaultSnoozeDelay = 30 * time.Minute
	DefaultDayStart    = 7 * time.Hour
	DefaultNightStart  = 22 * time.Hour
)

// Settings holds the tunables of the security state machine. DayStart and
// NightStart are offsets from local midnight.
type Settings struct {
	AwayDelay   time.Duration
	SnoozeDelay time.Duration
	DayStart    time.Duration
	NightStart  time.Duration
}

// SettingsSource supplies the current settings, typically backed by the
// database. Implementations substitute defaults for malformed values
// rather than failing.
type SettingsSource interface {
	SecuritySettings() (*Settings, error)
}

// DefaultSettings returns the fallback settings.
func DefaultSettings() *Settings {
	return &Settings{
		AwayDelay:   DefaultAwayDelay,
		SnoozeDelay: DefaultSnoozeDelay,
		DayStart:    DefaultDayStart,
		NightStart:  DefaultNightStart,
	}
}
