package db

import (
	"testing"
)

func TestInitSchemaCreatesTables(t *testing.T) {
	db := openTestDB(t)
	requireSchema(t, db)
	// Idempotent.
	requireSchema(t, db)

	exists, err := SchemaExists(db)
	if err != nil {
		t.Fatalf("schema exists: %v", err)
	}
	if !exists {
		t.Fatal("expected schema to exist")
	}

	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name LIKE 'chatsync_%'
		ORDER BY name
	`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan table: %v", err)
		}
		seen[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	for _, table := range []string{"chatsync_authors", "chatsync_drafts"} {
		if !seen[table] {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestSchemaExistsOnEmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	exists, err := SchemaExists(db)
	if err != nil {
		t.Fatalf("schema exists: %v", err)
	}
	if exists {
		t.Fatal("expected no schema")
	}
}
