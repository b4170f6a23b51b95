package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/antbox/ecm/internal/infrastructure/database"
	"github.com/antbox/ecm/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

// TestDB wraps the database for testing
type TestDB struct {
	*database.DB
}

// NewTestDB creates a new test database connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	// Use DATABASE_URL_TEST if available (for Docker), otherwise SQLite
	databaseURL := os.Getenv("DATABASE_URL_TEST")
	if databaseURL == "" {
		// Use SQLite in-memory for testing
		databaseURL = "file::memory:?cache=shared"
		t.Logf("Using SQLite in-memory database for testing")
	} else {
		t.Logf("Using PostgreSQL database for testing: %s", databaseURL)
	}

	db, err := database.New(databaseURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Auto-migrate all models
	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &TestDB{DB: db}
}

// Cleanup closes the test database
func (db *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestFolder inserts a bare folder node directly (bypassing the
// Node Service) as a parent fixture for repository-level tests.
func (db *TestDB) CreateTestFolder(t *testing.T, parent string) *models.NodeRow {
	t.Helper()
	now := time.Now().UTC()
	row := &models.NodeRow{
		UUID:              uuid.NewString(),
		Title:             "Test Folder",
		Mimetype:          string(nodes.MimetypeFolder),
		Parent:            parent,
		Owner:             nodes.RootUserEmail,
		CreatedTime:       now,
		ModifiedTime:      now,
		FolderPermissions: models.JSONB{},
		Tags:              models.StringArray{},
		Aspects:           models.StringArray{},
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("Failed to create test folder: %v", err)
	}
	return row
}

// CreateTestFile inserts a bare file node directly, as a fixture for
// repository/find tests that don't need the Node Service's
// permission/aspect pipeline.
func (db *TestDB) CreateTestFile(t *testing.T, parent string) *models.NodeRow {
	t.Helper()
	now := time.Now().UTC()
	row := &models.NodeRow{
		UUID:         uuid.NewString(),
		Title:        "Test File",
		Mimetype:     "text/plain",
		Parent:       parent,
		Owner:        nodes.RootUserEmail,
		CreatedTime:  now,
		ModifiedTime: now,
		Fulltext:     "test file",
		Tags:         models.StringArray{},
		Aspects:      models.StringArray{},
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return row
}
