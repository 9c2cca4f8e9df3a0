// Package database holds the persistence layer: event-definition
// configuration, fired-event history and the security settings singleton.
package database

import (
	"time"
)

// EventDefinition is one configured detection rule.
type EventDefinition struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	Name             string `gorm:"uniqueIndex;size:128;not null" json:"name"`
	EventWindowSecs  int    `gorm:"default:60" json:"event_window_secs"`
	DedupeWindowSecs int    `gorm:"default:300" json:"dedupe_window_secs"`
	Enabled          bool   `gorm:"default:true" json:"enabled"`

	Clauses        []EventClause   `gorm:"foreignKey:EventDefinitionID" json:"clauses,omitempty"`
	AlarmActions   []AlarmAction   `gorm:"foreignKey:EventDefinitionID" json:"alarm_actions,omitempty"`
	ControlActions []ControlAction `gorm:"foreignKey:EventDefinitionID" json:"control_actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventClause is one ordered condition of a definition.
type EventClause struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	EventDefinitionID uint   `gorm:"not null;index" json:"event_definition_id"`
	Position          int    `gorm:"default:0" json:"position"`
	StateKey          string `gorm:"size:128;not null" json:"state_key"`
	ExpectedValue     string `gorm:"size:128;not null" json:"expected_value"`
}

// AlarmAction maps a security level to the alarm a definition raises.
type AlarmAction struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	EventDefinitionID uint   `gorm:"not null;index" json:"event_definition_id"`
	SecurityLevel     string `gorm:"size:16;not null" json:"security_level"`
	AlarmLevel        string `gorm:"size:16;not null" json:"alarm_level"`
	LifetimeSecs      int    `gorm:"default:600" json:"lifetime_secs"`
}

// ControlAction is a controller invocation a definition triggers.
type ControlAction struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	EventDefinitionID uint   `gorm:"not null;index" json:"event_definition_id"`
	ControllerKey     string `gorm:"size:128;not null" json:"controller_key"`
	Value             string `gorm:"size:128;not null" json:"value"`
}

// EventHistory records one firing of a definition.
type EventHistory struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	EventDefinitionID uint      `gorm:"index" json:"event_definition_id"`
	DefinitionName    string    `gorm:"size:128" json:"definition_name"`
	OccurredAt        time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// SecuritySettings is the singleton row of security tunables. Delay and
// time-of-day values are stored as strings; malformed values fall back to
// documented defaults at read time instead of failing the caller.
type SecuritySettings struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	AwayDelayMinutes   string    `gorm:"size:16;default:'10'" json:"away_delay_minutes"`
	SnoozeDelayMinutes string    `gorm:"size:16;default:'30'" json:"snooze_delay_minutes"`
	DayStartTime       string    `gorm:"size:16;default:'07:00'" json:"day_start_time"`
	NightStartTime     string    `gorm:"size:16;default:'22:00'" json:"night_start_time"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewDefaultSecuritySettings returns settings with default values.
func NewDefaultSecuritySettings() *SecuritySettings {
	return &SecuritySettings{
		AwayDelayMinutes:   "10",
		SnoozeDelayMinutes: "30",
		DayStartTime:       "07:00",
		NightStartTime:     "22:00",
	}
}

// TableName overrides for explicit table naming.
func (EventDefinition) TableName() string {
	return "event_definitions"
}

func (EventClause) TableName() string {
	return "event_clauses"
}

func (AlarmAction) TableName() string {
	return "alarm_actions"
}

func (ControlAction) TableName() string {
	return "control_actions"
}

func (EventHistory) TableName() string {
	return "event_history"
}

func (SecuritySettings) TableName() string {
	return "security_settings"
}
