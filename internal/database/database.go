package database

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the database named by url and applies any pending
// migrations. Postgres URLs get the postgres driver; anything else is
// treated as a sqlite file path.
func NewDatabase(url string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		dialector = postgres.Open(url)
	} else {
		dialector = sqlite.Open(url)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("error running database migrations: %w", err)
	}

	slog.Info("database connection established", "dialect", db.Dialector.Name())

	return db, nil
}
