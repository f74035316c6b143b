package models

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
)

const testOrgId = "org-test"

// setupStore gives each test a fresh in-memory store and an org-scoped
// context. A single connection keeps every query on the same memory database.
func setupStore(t *testing.T) context.Context {
	t.Helper()
	t.Setenv("DB_MAX_OPEN_CONNS", "1")
	t.Setenv("DB_LOG_LEVEL", "silent")
	if err := config.OpenLocalStore(":memory:"); err != nil {
		t.Fatalf("open store: %v", err)
	}
	MigrateTable()
	return utils.SetOrgIdInContext(context.Background(), testOrgId)
}
