package main

import (
	"log"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/model"
	"llm-knowledge-be/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to database using existing GORM helpers
	db, err := database.Open(cfg.Database.Connection, cfg.Database.Debug)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}
	postgres := database.IsPostgres(db)

	log.Println("Starting GORM migration...")

	// 3. Pre-migration: extensions (Postgres only)
	if postgres {
		log.Println("Step 1: Setting up extensions...")
		setupSQL := []string{
			`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
			`CREATE EXTENSION IF NOT EXISTS vector;`,
		}
		for _, sql := range setupSQL {
			if err := db.Exec(sql).Error; err != nil {
				log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
			}
		}
	}

	// 4. AutoMigrate all models
	models := model.AllModels()
	log.Printf("Step 2: Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-migration: views
	log.Println("Step 3: Creating views...")
	postMigrationSQL := []string{
		`DROP VIEW IF EXISTS collection_resource_states;`,
		`CREATE VIEW collection_resource_states AS
		 SELECT rc.collection_id, r.state, COUNT(*) AS resources
		 FROM resource_collections rc JOIN resources r ON r.id = rc.resource_id
		 GROUP BY rc.collection_id, r.state;`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
