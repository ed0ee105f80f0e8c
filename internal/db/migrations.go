package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS accidents (
		id                TEXT PRIMARY KEY,
		timestamp         TIMESTAMPTZ NOT NULL,
		result            TEXT NOT NULL,
		severity          TEXT,
		entities          JSONB,
		collage_reference TEXT,
		processing_time   DOUBLE PRECISION,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_accidents_timestamp ON accidents(timestamp DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_accidents_severity ON accidents(severity);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
