package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStockMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_stock_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no stock migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE stock_items",
		"PRIMARY KEY (stockable_type, stockable_id)",
		"CREATE TABLE stock_movements",
		"quantity_before integer NOT NULL",
		"quantity_after integer NOT NULL",
		"CREATE TABLE stock_reservations",
		"CHECK (quantity > 0)",
		"WHERE converted_at IS NULL",
		"DROP TABLE stock_reservations",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
