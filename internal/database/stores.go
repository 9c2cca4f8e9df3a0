package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/events"
	"github.com/hearthwatch/hearthwatch/internal/security"
)

// DefinitionStore loads event definitions for the detection engine.
type DefinitionStore struct {
	db *gorm.DB
}

// NewDefinitionStore creates a definition store.
func NewDefinitionStore(db *gorm.DB) *DefinitionStore {
	return &DefinitionStore{db: db}
}

// EnabledDefinitions returns every enabled definition with its clauses and
// actions, in stable configuration order. Implements
// events.DefinitionSource.
func (s *DefinitionStore) EnabledDefinitions() ([]*events.Definition, error) {
	var models []EventDefinition
	err := s.db.
		Preload("Clauses", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("AlarmActions").
		Preload("ControlActions").
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	defs := make([]*events.Definition, 0, len(models))
	for _, m := range models {
		def, err := toDomainDefinition(m)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func toDomainDefinition(m EventDefinition) (*events.Definition, error) {
	def := &events.Definition{
		ID:           m.ID,
		Name:         m.Name,
		EventWindow:  time.Duration(m.EventWindowSecs) * time.Second,
		DedupeWindow: time.Duration(m.DedupeWindowSecs) * time.Second,
		Enabled:      m.Enabled,
	}

	for _, c := range m.Clauses {
		def.Clauses = append(def.Clauses, events.Clause{
			StateKey:      c.StateKey,
			ExpectedValue: c.ExpectedValue,
		})
	}

	for _, a := range m.AlarmActions {
		level, ok := security.ParseLevel(a.SecurityLevel)
		if !ok {
			return nil, fmt.Errorf("definition %q: invalid security level %q", m.Name, a.SecurityLevel)
		}
		alarmLevel, ok := alerts.ParseLevel(a.AlarmLevel)
		if !ok {
			return nil, fmt.Errorf("definition %q: invalid alarm level %q", m.Name, a.AlarmLevel)
		}
		def.AlarmActions = append(def.AlarmActions, events.AlarmAction{
			SecurityLevel: level,
			AlarmLevel:    alarmLevel,
			Lifetime:      time.Duration(a.LifetimeSecs) * time.Second,
		})
	}

	for _, c := range m.ControlActions {
		def.ControlActions = append(def.ControlActions, events.ControlAction{
			ControllerKey: c.ControllerKey,
			Value:         c.Value,
		})
	}

	return def, nil
}

// HistoryStore bulk-persists fired events. Implements events.HistoryWriter.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a history store.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// WriteEventHistory persists one detection pass's records in a single batch.
func (s *HistoryStore) WriteEventHistory(records []events.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]EventHistory, 0, len(records))
	for _, r := range records {
		rows = append(rows, EventHistory{
			EventDefinitionID: r.DefinitionID,
			DefinitionName:    r.DefinitionName,
			OccurredAt:        r.OccurredAt,
		})
	}

	return s.db.CreateInBatches(rows, 100).Error
}

// RecentHistory returns history rows that occurred after since, newest first.
func (s *HistoryStore) RecentHistory(since time.Time, limit int) ([]EventHistory, error) {
	var rows []EventHistory
	err := s.db.
		Where("occurred_at > ?", since).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SettingsStore adapts the settings singleton to the security package.
// Implements security.SettingsSource.
type SettingsStore struct {
	db *gorm.DB
}

// NewSettingsStore creates a settings store.
func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// SecuritySettings loads the settings row, substituting documented defaults
// for malformed values rather than failing.
func (s *SettingsStore) SecuritySettings() (*security.Settings, error) {
	row, err := GetOrCreateSecuritySettings(s.db)
	if err != nil {
		return nil, err
	}

	return &security.Settings{
		AwayDelay:   minutesOrDefault(row.AwayDelayMinutes, security.DefaultAwayDelay),
		SnoozeDelay: minutesOrDefault(row.SnoozeDelayMinutes, security.DefaultSnoozeDelay),
		DayStart:    clockOrDefault(row.DayStartTime, security.DefaultDayStart),
		NightStart:  clockOrDefault(row.NightStartTime, security.DefaultNightStart),
	}, nil
}

// minutesOrDefault parses a minutes string, falling back on malformed or
// non-positive values.
func minutesOrDefault(s string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Minute
}

// clockOrDefault parses an "HH:MM" string into an offset from midnight.
func clockOrDefault(s string, fallback time.Duration) time.Duration {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return fallback
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return fallback
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
}
