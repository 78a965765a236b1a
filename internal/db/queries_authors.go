package db

import (
	"database/sql"
	"time"

	"github.com/adamavenir/chatsync/internal/types"
)

// GetAuthor returns a cached author, or nil when unknown.
func GetAuthor(db DBTX, userID string) (*types.Author, error) {
	row := db.QueryRow("SELECT user_id, display_name FROM chatsync_authors WHERE user_id = ?", userID)
	var author types.Author
	if err := row.Scan(&author.ID, &author.DisplayName); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &author, nil
}

// UpsertAuthor stores a resolved display name.
func UpsertAuthor(db DBTX, author types.Author) error {
	_, err := db.Exec(`
		INSERT INTO chatsync_authors (user_id, display_name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		  display_name = excluded.display_name,
		  updated_at = excluded.updated_at
	`, author.ID, author.DisplayName, time.Now().Unix())
	return err
}

// GetAuthors returns every cached author ordered by id.
func GetAuthors(db DBTX) ([]types.Author, error) {
	rows, err := db.Query("SELECT user_id, display_name FROM chatsync_authors ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []types.Author
	for rows.Next() {
		var author types.Author
		if err := rows.Scan(&author.ID, &author.DisplayName); err != nil {
			return nil, err
		}
		authors = append(authors, author)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return authors, nil
}
