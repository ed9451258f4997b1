// Package db opens the relational database behind the credential store
package db

import (
	"errors"
	"fmt"
	"os"

	"followpro/api/config"
	"followpro/api/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the configured database and migrates the auth tables
func New(c config.Database, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch c.Type {
	case "sqlite":
		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if inContainer() {
			if _, err := os.Stat(c.Path); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to %s", c.Path)
			}
		}

		dialector = sqlite.Open(c.Path + "?_busy_timeout=5000&_foreign_keys=on")
	case "postgres":
		dialector = postgres.Open(c.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", c.Type)
	}

	gormLog := logger.Default.LogMode(logger.Warn)
	if logLevel == "debug" {
		gormLog = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database, %w", c.Type, err)
	}

	if c.Type == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}

		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(model.User{}, model.OTPToken{})
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return db, nil
}

// Close releases the connection pool held by db
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func inContainer() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
