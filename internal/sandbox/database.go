package sandbox

import (
	"strings"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/db"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"gorm.io/gorm"
)

// sandboxDatabaseName derives the per-sandbox database name from the key.
// Dashes are not valid in database identifiers.
func sandboxDatabaseName(projectID, sessionID string) string {
	name := "sandbox_" + projectID + "_" + sessionID
	return strings.ReplaceAll(name, "-", "_")
}

func createSandboxDatabase(adminDB *gorm.DB, name string) error {
	return db.CreateDatabase(adminDB, name)
}

func dropSandboxDatabase(adminDB *gorm.DB, name string) error {
	if err := db.DropDatabase(adminDB, name); err != nil {
		return &kerr.ExternalServiceError{Service: "relational store", Err: err}
	}
	return nil
}
