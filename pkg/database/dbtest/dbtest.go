// Package dbtest provides throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/database"

	"gorm.io/gorm"
)

// Schema mirrors the demo data set: flights flown by pilots on planes.
const Schema = `
tables:
  - name: flights
    description: Scheduled flights between airports.
    columns:
      - {name: id, type: INTEGER, primary_key: true}
      - {name: pilot_id, type: INTEGER, foreign_key: pilots.id}
      - {name: plane_id, type: INTEGER, foreign_key: planes.id}
      - {name: origin, type: TEXT}
      - {name: destination, type: TEXT}
      - {name: departure_time, type: TEXT}
  - name: pilots
    columns:
      - {name: id, type: INTEGER, primary_key: true}
      - {name: name, type: TEXT}
      - {name: license_type, type: TEXT}
  - name: planes
    columns:
      - {name: id, type: INTEGER, primary_key: true}
      - {name: model, type: TEXT}
      - {name: capacity, type: INTEGER}
`

// Seed returns the demo rows.
func Seed() database.SeedData {
	return database.SeedData{
		"flights": {
			{"id": 1, "pilot_id": 101, "plane_id": 1, "origin": "JFK", "destination": "LHR", "departure_time": "2023-10-25 08:00:00"},
			{"id": 2, "pilot_id": 102, "plane_id": 1, "origin": "LHR", "destination": "CDG", "departure_time": "2023-10-26 14:30:00"},
		},
		"pilots": {
			{"id": 101, "name": "Maverick", "license_type": "Military"},
			{"id": 102, "name": "Amelia", "license_type": "Commercial"},
		},
		"planes": {
			{"id": 1, "model": "Boeing 737", "capacity": 150},
		},
	}
}

// Catalog parses Schema.
func Catalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(Schema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return cat
}

// Open creates a file-backed SQLite database under t.TempDir, builds the
// catalog tables and loads seed into them.
func Open(t testing.TB, cat *catalog.Catalog, seed database.SeedData) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(database.DialectSQLite, path, io.Discard)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := database.Migrate(context.Background(), db, cat, seed, Logger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Logger discards everything.
func Logger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
