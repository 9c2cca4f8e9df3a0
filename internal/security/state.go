package security

// State is the system's security posture.
type State string

const (
	StateUnknown  State = "unknown"
	StateDisabled State = "disabled"
	StateDay      State = "day"
	StateNight    State = "night"
	StateAway     State = "away"
)

// ParseState converts a stored state string back to a State.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateDisabled, StateDay, StateNight, StateAway:
		return State(s), true
	default:
		return StateUnknown, false
	}
}

// AutoChangeAllowed reports whether routine time-of-day automation may
// replace this state. Disabled and away are sticky: only an explicit user
// action moves the system out of them.
func (s State) AutoChangeAllowed() bool {
	switch s {
	case StateDay, StateNight:
		return true
	default:
		return false
	}
}

// Level is the alarm-sensitivity level derived from the current state.
type Level int

const (
	LevelOff Level = iota
	LevelLow
	LevelHigh
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	default:
		return "off"
	}
}

// ParseLevel converts a level string to a Level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "off":
		return LevelOff, true
	case "low":
		return LevelLow, true
	case "high":
		return LevelHigh, true
	default:
		return LevelOff, false
	}
}

// Level returns the alarm-sensitivity level for a state. The mapping is
// fixed: disabled monitoring is off, daytime runs reduced sensitivity,
// night and away run full sensitivity.
func (s State) Level() Level {
	switch s {
	case StateDay:
		return LevelLow
	case StateNight, StateAway:
		return LevelHigh
	default:
		return LevelOff
	}
}

// Action is a user-initiated security posture change.
type Action string

const (
	ActionDisable  Action = "disable"
	ActionSetDay   Action = "set_day"
	ActionSetNight Action = "set_night"
	ActionSetAway  Action = "set_away"
	ActionSnooze   Action = "snooze"
)
