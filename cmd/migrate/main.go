package main

import (
	"context"
	"fmt"
	"os"

	"github.com/antbox/ecm/internal/app/config"
	"github.com/antbox/ecm/internal/infrastructure/database"
	"github.com/antbox/ecm/internal/infrastructure/database/models"
	"github.com/antbox/ecm/internal/infrastructure/repositories/postgresql"
	"github.com/antbox/ecm/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	command := os.Args[1]

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch command {
	case "up":
		runMigrations(db, log)
	case "reset":
		resetDatabase(db, log)
	case "seed":
		seedDatabase(db, log)
	case "status":
		migrationStatus(db, log)
	default:
		log.Error("Unknown command", "command", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  up     - Run all pending migrations")
	fmt.Println("  reset  - Drop all tables and recreate them")
	fmt.Println("  seed   - Bootstrap the reserved folder tree (§6)")
	fmt.Println("  status - Show migration status")
}

// runMigrations auto-migrates the Node Service's full table set (spec.md
// §4.A/C/E): the polymorphic node table, its vector-search companion,
// and the Configuration Repository's three collections.
func runMigrations(db *database.DB, log *logger.Logger) {
	log.Info("Running database migrations...")

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		log.Error("Failed to run migrations", "error", err)
		return
	}

	if err := createIndexes(db); err != nil {
		log.Error("Failed to create indexes", "error", err)
		return
	}

	log.Info("Database migrations completed successfully")
}

func resetDatabase(db *database.DB, log *logger.Logger) {
	log.Info("Resetting database...")

	for _, table := range models.GetAllModels() {
		if err := db.Migrator().DropTable(table); err != nil {
			log.Error("Failed to drop table", "error", err)
		}
	}

	runMigrations(db, log)

	log.Info("Database reset completed")
}

// seedDatabase bootstraps the reserved, always-present folder tree
// (Root, System, and its six sub-system folders) that spec.md §6
// requires the implementation to honor.
func seedDatabase(db *database.DB, log *logger.Logger) {
	log.Info("Seeding reserved folder tree...")

	repo := postgresql.NewNodeRepository(db)
	if err := repo.Bootstrap(context.Background()); err != nil {
		log.Error("Failed to bootstrap reserved folders", "error", err)
		return
	}

	log.Info("Reserved folder tree seeded successfully")
}

func migrationStatus(db *database.DB, log *logger.Logger) {
	log.Info("Checking migration status...")

	tables := map[string]interface{}{
		"nodes":                &models.NodeRow{},
		"node_embeddings":      &models.NodeEmbedding{},
		"aspects":              &models.AspectRow{},
		"workflow_definitions": &models.WorkflowDefinitionRow{},
		"workflow_instances":   &models.WorkflowInstanceRow{},
	}

	for tableName, model := range tables {
		exists := db.Migrator().HasTable(model)
		status := "exists"
		if !exists {
			status = "missing"
		}
		log.Info("Table status", "table", tableName, "status", status)
	}
}

func createIndexes(db *database.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent)",
		"CREATE INDEX IF NOT EXISTS idx_nodes_fulltext_gin ON nodes USING gin(to_tsvector('english', coalesce(fulltext, '')))",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
