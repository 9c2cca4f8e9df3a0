package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes a connection to the PostgreSQL database.
func Connect(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate runs database migrations.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&EventDefinition{},
		&EventClause{},
		&AlarmAction{},
		&ControlAction{},
		&EventHistory{},
		&SecuritySettings{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOrCreateSecuritySettings retrieves or creates the settings singleton.
func GetOrCreateSecuritySettings(db *gorm.DB) (*SecuritySettings, error) {
	var settings SecuritySettings
	result := db.First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *NewDefaultSecuritySettings()
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateSecuritySettings saves the settings singleton.
func UpdateSecuritySettings(db *gorm.DB, settings *SecuritySettings) error {
	return db.Save(settings).Error
}
