package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"db-agent-be/pkg/catalog"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedData maps table name to the rows inserted into it.
type SeedData map[string][]map[string]any

// LoadSeed reads a seed YAML file.
func LoadSeed(path string) (SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return data, nil
}

// Migrate recreates every catalog table and loads the seed rows into it.
// Existing tables with the same names are dropped.
func Migrate(ctx context.Context, db *gorm.DB, cat *catalog.Catalog, seed SeedData, logger *log.Logger) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range cat.Tables() {
			logger.Printf("[MIGRATE] Creating table %s", t.Name)

			if err := tx.Migrator().DropTable(t.Name); err != nil {
				return fmt.Errorf("drop %s: %w", t.Name, err)
			}
			if err := tx.Exec(createStatement(tx, t)).Error; err != nil {
				return fmt.Errorf("create %s: %w", t.Name, err)
			}

			rows := seed[t.Name]
			if len(rows) == 0 {
				continue
			}
			logger.Printf("[MIGRATE] Seeding %s with %d rows", t.Name, len(rows))
			if err := tx.Table(t.Name).Create(rows).Error; err != nil {
				return fmt.Errorf("seed %s: %w", t.Name, err)
			}
		}
		return nil
	})
}

func createStatement(tx *gorm.DB, t catalog.Table) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		def := tx.Statement.Quote(c.Name) + " " + c.Type
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", tx.Statement.Quote(t.Name), strings.Join(defs, ", "))
}

// CountRows returns the number of records in each named table.
func CountRows(ctx context.Context, db *gorm.DB, tables []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tables))
	for _, name := range tables {
		var n int64
		if err := db.WithContext(ctx).Table(name).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}
