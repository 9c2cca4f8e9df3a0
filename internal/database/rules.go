package database

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/security"
)

// rulesFile is the YAML shape of a declarative event-definition seed file.
type rulesFile struct {
	Definitions []ruleDefinition `yaml:"definitions"`
}

type ruleDefinition struct {
	Name             string              `yaml:"name"`
	EventWindowSecs  int                 `yaml:"event_window_secs"`
	DedupeWindowSecs int                 `yaml:"dedupe_window_secs"`
	Enabled          *bool               `yaml:"enabled"`
	Clauses          []ruleClause        `yaml:"clauses"`
	AlarmActions     []ruleAlarmAction   `yaml:"alarm_actions"`
	ControlActions   []ruleControlAction `yaml:"control_actions"`
}

type ruleClause struct {
	State  string `yaml:"state"`
	Equals string `yaml:"equals"`
}

type ruleAlarmAction struct {
	SecurityLevel string `yaml:"security_level"`
	AlarmLevel    string `yaml:"alarm_level"`
	LifetimeSecs  int    `yaml:"lifetime_secs"`
}

type ruleControlAction struct {
	Controller string `yaml:"controller"`
	Value      string `yaml:"value"`
}

// LoadRulesFile seeds event definitions from a YAML file, upserting by
// name. Clauses and actions of an existing definition are replaced
// wholesale so the file stays authoritative.
func LoadRulesFile(db *gorm.DB, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse rules file: %w", err)
	}

	for i, rule := range file.Definitions {
		if err := validateRule(rule); err != nil {
			return 0, fmt.Errorf("rules file definition %d: %w", i, err)
		}
	}

	loaded := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, rule := range file.Definitions {
			if err := upsertRule(tx, rule); err != nil {
				return fmt.Errorf("definition %q: %w", rule.Name, err)
			}
			loaded++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return loaded, nil
}

func validateRule(rule ruleDefinition) error {
	if rule.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(rule.Clauses) == 0 {
		return fmt.Errorf("no clauses")
	}
	for _, c := range rule.Clauses {
		if c.State == "" || c.Equals == "" {
			return fmt.Errorf("clause needs both state and equals")
		}
	}
	for _, a := range rule.AlarmActions {
		if _, ok := security.ParseLevel(a.SecurityLevel); !ok {
			return fmt.Errorf("invalid security level %q", a.SecurityLevel)
		}
		if _, ok := alerts.ParseLevel(a.AlarmLevel); !ok {
			return fmt.Errorf("invalid alarm level %q", a.AlarmLevel)
		}
	}
	for _, c := range rule.ControlActions {
		if c.Controller == "" {
			return fmt.Errorf("control action needs a controller")
		}
	}
	return nil
}

func upsertRule(tx *gorm.DB, rule ruleDefinition) error {
	enabled := true
	if rule.Enabled != nil {
		enabled = *rule.Enabled
	}

	var def EventDefinition
	result := tx.Where("name = ?", rule.Name).First(&def)
	if result.Error != nil {
		if result.Error != gorm.ErrRecordNotFound {
			return result.Error
		}
		def = EventDefinition{Name: rule.Name}
	}

	def.EventWindowSecs = rule.EventWindowSecs
	def.DedupeWindowSecs = rule.DedupeWindowSecs
	def.Enabled = enabled
	if err := tx.Save(&def).Error; err != nil {
		return err
	}

	// Replace associations wholesale.
	for _, model := range []interface{}{&EventClause{}, &AlarmAction{}, &ControlAction{}} {
		if err := tx.Where("event_definition_id = ?", def.ID).Delete(model).Error; err != nil {
			return err
		}
	}

	for i, c := range rule.Clauses {
		clause := EventClause{
			EventDefinitionID: def.ID,
			Position:          i,
			StateKey:          c.State,
			ExpectedValue:     c.Equals,
		}
		if err := tx.Create(&clause).Error; err != nil {
			return err
		}
	}

	for _, a := range rule.AlarmActions {
		action := AlarmAction{
			EventDefinitionID: def.ID,
			SecurityLevel:     a.SecurityLevel,
			AlarmLevel:        a.AlarmLevel,
			LifetimeSecs:      a.LifetimeSecs,
		}
		if err := tx.Create(&action).Error; err != nil {
			return err
		}
	}

	for _, c := range rule.ControlActions {
		action := ControlAction{
			EventDefinitionID: def.ID,
			ControllerKey:     c.Controller,
			Value:             c.Value,
		}
		if err := tx.Create(&action).Error; err != nil {
			return err
		}
	}

	return nil
}
