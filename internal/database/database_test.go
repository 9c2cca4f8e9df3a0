package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/events"
	"github.com/hearthwatch/hearthwatch/internal/security"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleRules = `
definitions:
  - name: night-entry
    event_window_secs: 120
    dedupe_window_secs: 300
    clauses:
      - state: sensor.door
        equals: open
      - state: sensor.motion
        equals: detected
    alarm_actions:
      - security_level: high
        alarm_level: critical
        lifetime_secs: 600
    control_actions:
      - controller: light.porch
        value: "on"
  - name: window-left-open
    event_window_secs: 60
    dedupe_window_secs: 900
    enabled: false
    clauses:
      - state: sensor.window
        equals: open
`

func TestLoadRulesFileSeedsDefinitions(t *testing.T) {
	db := testDB(t)

	n, err := LoadRulesFile(db, writeRules(t, sampleRules))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	defs, err := NewDefinitionStore(db).EnabledDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, 1, "disabled definitions are excluded")

	def := defs[0]
	assert.Equal(t, "night-entry", def.Name)
	assert.Equal(t, 2*time.Minute, def.EventWindow)
	assert.Equal(t, 5*time.Minute, def.DedupeWindow)

	require.Len(t, def.Clauses, 2)
	assert.Equal(t, "sensor.door", def.Clauses[0].StateKey, "clause order follows file position")
	assert.Equal(t, "sensor.motion", def.Clauses[1].StateKey)

	require.Len(t, def.AlarmActions, 1)
	assert.Equal(t, security.LevelHigh, def.AlarmActions[0].SecurityLevel)
	assert.Equal(t, alerts.LevelCritical, def.AlarmActions[0].AlarmLevel)
	assert.Equal(t, 10*time.Minute, def.AlarmActions[0].Lifetime)

	require.Len(t, def.ControlActions, 1)
	assert.Equal(t, "light.porch", def.ControlActions[0].ControllerKey)
	assert.Equal(t, "on", def.ControlActions[0].Value)
}

func TestLoadRulesFileUpsertsByName(t *testing.T) {
	db := testDB(t)

	_, err := LoadRulesFile(db, writeRules(t, sampleRules))
	require.NoError(t, err)

	updated := `
definitions:
  - name: night-entry
    event_window_secs: 90
    dedupe_window_secs: 300
    clauses:
      - state: sensor.back_door
        equals: open
`
	n, err := LoadRulesFile(db, writeRules(t, updated))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int64
	require.NoError(t, db.Model(&EventDefinition{}).Where("name = ?", "night-entry").Count(&count).Error)
	assert.EqualValues(t, 1, count, "reloading must not duplicate")

	defs, err := NewDefinitionStore(db).EnabledDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, 90*time.Second, defs[0].EventWindow)
	require.Len(t, defs[0].Clauses, 1, "clauses are replaced wholesale")
	assert.Equal(t, "sensor.back_door", defs[0].Clauses[0].StateKey)
	assert.Empty(t, defs[0].AlarmActions)
}

func TestLoadRulesFileRejectsInvalidRules(t *testing.T) {
	db := testDB(t)

	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "definitions:\n  - clauses:\n      - state: a\n        equals: b\n"},
		{"no clauses", "definitions:\n  - name: x\n"},
		{"bad security level", `
definitions:
  - name: x
    clauses:
      - state: a
        equals: b
    alarm_actions:
      - security_level: extreme
        alarm_level: critical
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRulesFile(db, writeRules(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestEnabledDefinitionsRejectsCorruptLevels(t *testing.T) {
	db := testDB(t)

	def := EventDefinition{Name: "broken", Enabled: true}
	require.NoError(t, db.Create(&def).Error)
	require.NoError(t, db.Create(&AlarmAction{
		EventDefinitionID: def.ID,
		SecurityLevel:     "bogus",
		AlarmLevel:        "critical",
	}).Error)

	_, err := NewDefinitionStore(db).EnabledDefinitions()
	assert.Error(t, err)
}

func TestSecuritySettingsSingleton(t *testing.T) {
	db := testDB(t)

	created, err := GetOrCreateSecuritySettings(db)
	require.NoError(t, err)
	assert.Equal(t, "10", created.AwayDelayMinutes)

	again, err := GetOrCreateSecuritySettings(db)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID, "repeated calls reuse the row")
}

func TestSettingsStoreParsesValues(t *testing.T) {
	db := testDB(t)

	row, err := GetOrCreateSecuritySettings(db)
	require.NoError(t, err)
	row.AwayDelayMinutes = "5"
	row.SnoozeDelayMinutes = "45"
	row.DayStartTime = "06:30"
	row.NightStartTime = "21:15"
	require.NoError(t, UpdateSecuritySettings(db, row))

	settings, err := NewSettingsStore(db).SecuritySettings()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, settings.AwayDelay)
	assert.Equal(t, 45*time.Minute, settings.SnoozeDelay)
	assert.Equal(t, 6*time.Hour+30*time.Minute, settings.DayStart)
	assert.Equal(t, 21*time.Hour+15*time.Minute, settings.NightStart)
}

func TestSettingsStoreFallsBackOnMalformedValues(t *testing.T) {
	db := testDB(t)

	row, err := GetOrCreateSecuritySettings(db)
	require.NoError(t, err)
	row.AwayDelayMinutes = "soon"
	row.SnoozeDelayMinutes = "-3"
	row.DayStartTime = "25:99"
	row.NightStartTime = "nightfall"
	require.NoError(t, UpdateSecuritySettings(db, row))

	settings, err := NewSettingsStore(db).SecuritySettings()
	require.NoError(t, err)
	assert.Equal(t, security.DefaultAwayDelay, settings.AwayDelay)
	assert.Equal(t, security.DefaultSnoozeDelay, settings.SnoozeDelay)
	assert.Equal(t, security.DefaultDayStart, settings.DayStart)
	assert.Equal(t, security.DefaultNightStart, settings.NightStart)
}

func TestHistoryStoreWriteAndQuery(t *testing.T) {
	db := testDB(t)
	store := NewHistoryStore(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteEventHistory(nil), "empty batch is a no-op")

	require.NoError(t, store.WriteEventHistory([]events.HistoryRecord{
		{DefinitionID: 1, DefinitionName: "night-entry", OccurredAt: base},
		{DefinitionID: 1, DefinitionName: "night-entry", OccurredAt: base.Add(time.Hour)},
		{DefinitionID: 2, DefinitionName: "window-left-open", OccurredAt: base.Add(2 * time.Hour)},
	}))

	rows, err := store.RecentHistory(base.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "window-left-open", rows[0].DefinitionName, "newest first")
}
