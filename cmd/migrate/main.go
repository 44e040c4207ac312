package main

import (
	"context"
	"flag"
	"log"
	"os"

	"db-agent-be/internal/config"
	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/database"
)

// Creates the catalog tables and loads the demo rows. Existing tables with
// the same names are dropped first.
func main() {
	skipSeed := flag.Bool("no-seed", false, "create tables without loading seed rows")
	flag.Parse()

	// 1. Load Configuration
	cfg := config.Load()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	// 2. Connect to Database using existing GORM helpers
	db, err := database.Open(cfg.Database.Dialect, cfg.Database.Connection, nil)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatal("Error: Failed to load catalog:", err)
	}

	seed := database.SeedData{}
	if !*skipSeed {
		seed, err = database.LoadSeed(cfg.Catalog.SeedPath)
		if err != nil {
			log.Fatal("Error: Failed to load seed data:", err)
		}
	}

	log.Printf("Migrating %d tables (%s)...", len(cat.Names()), cfg.Database.Dialect)
	ctx := context.Background()
	if err := database.Migrate(ctx, db, cat, seed, logger); err != nil {
		log.Fatal("Error: Migration failed:", err)
	}

	counts, err := database.CountRows(ctx, db, cat.Names())
	if err != nil {
		log.Fatal("Error: Failed to verify migration:", err)
	}
	for _, name := range cat.Names() {
		log.Printf("  %s: %d rows", name, counts[name])
	}
	log.Println("Database initialization complete.")
}
