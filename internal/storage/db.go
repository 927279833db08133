package storage

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the postgres database at dsn and migrates the match tables.
func New(dsn string, debug bool) (*gorm.DB, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Match{}, &Seat{}, &Move{}); err != nil {
		return nil, err
	}
	return db, nil
}
