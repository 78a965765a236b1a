package db

import (
	"database/sql"
)

const schemaSQL = `
-- Resolved author display names
CREATE TABLE IF NOT EXISTS chatsync_authors (
  user_id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  updated_at INTEGER NOT NULL          -- unix timestamp
);

-- Failed sends kept for retry across restarts
CREATE TABLE IF NOT EXISTS chatsync_drafts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  conversation_id TEXT NOT NULL,
  body TEXT NOT NULL,
  client_id TEXT NOT NULL UNIQUE,      -- correlation id sent as clientId
  error TEXT,
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chatsync_drafts_conversation ON chatsync_drafts(conversation_id);
`

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// InitSchema initializes the chatsync schema.
func InitSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SchemaExists checks whether the schema has been initialized.
func SchemaExists(db DBTX) (bool, error) {
	row := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='chatsync_drafts'
	`)
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return name != "", nil
}
