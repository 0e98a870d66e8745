package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/campuseats/campuseats-backend/pkg/migrate"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_core_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS vendor_inventory_items",
		"CHECK (quantity >= 0)",
		"UNIQUE (vendor_id, item_id, kind)",
		"DROP TABLE IF EXISTS vendor_inventory_items",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestReportMigrationKeysTransferLegs(t *testing.T) {
	content := readMigration(t, "*_create_inventory_reports.sql")

	checks := []string{
		"UNIQUE (vendor_id, report_date)",
		"UNIQUE (report_id, item_id, kind)",
		"UNIQUE (report_id, item_id, direction, counterparty_vendor_id)",
		"CHECK (direction IN ('send', 'received'))",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
