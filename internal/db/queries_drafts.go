package db

import (
	"database/sql"
	"time"

	"github.com/adamavenir/chatsync/internal/types"
)

// SaveDraft stores a failed send. Saving the same client id again updates
// the recorded error.
func SaveDraft(db DBTX, draft types.Draft) (types.Draft, error) {
	if draft.CreatedAt == 0 {
		draft.CreatedAt = time.Now().Unix()
	}
	var errText sql.NullString
	if draft.Error != "" {
		errText = sql.NullString{String: draft.Error, Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO chatsync_drafts (conversation_id, body, client_id, error, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET error = excluded.error
	`, draft.ConversationID, draft.Body, draft.ClientID, errText, draft.CreatedAt)
	if err != nil {
		return types.Draft{}, err
	}
	saved, err := GetDraftByClientID(db, draft.ClientID)
	if err != nil {
		return types.Draft{}, err
	}
	if saved == nil {
		return types.Draft{}, sql.ErrNoRows
	}
	return *saved, nil
}

// GetDraft returns a draft by id, or nil.
func GetDraft(db DBTX, id int64) (*types.Draft, error) {
	row := db.QueryRow(`
		SELECT id, conversation_id, body, client_id, error, created_at
		FROM chatsync_drafts WHERE id = ?
	`, id)
	return scanDraft(row)
}

// GetDraftByClientID returns a draft by its correlation id, or nil.
func GetDraftByClientID(db DBTX, clientID string) (*types.Draft, error) {
	row := db.QueryRow(`
		SELECT id, conversation_id, body, client_id, error, created_at
		FROM chatsync_drafts WHERE client_id = ?
	`, clientID)
	return scanDraft(row)
}

// GetDrafts lists drafts oldest first. An empty conversationID lists all.
func GetDrafts(db DBTX, conversationID string) ([]types.Draft, error) {
	query := `
		SELECT id, conversation_id, body, client_id, error, created_at
		FROM chatsync_drafts`
	var args []any
	if conversationID != "" {
		query += " WHERE conversation_id = ?"
		args = append(args, conversationID)
	}
	query += " ORDER BY created_at, id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []types.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *draft)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drafts, nil
}

// DeleteDraft removes a draft. It reports whether a row was deleted.
func DeleteDraft(db DBTX, id int64) (bool, error) {
	res, err := db.Exec("DELETE FROM chatsync_drafts WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (*types.Draft, error) {
	var draft types.Draft
	var errText sql.NullString
	if err := row.Scan(&draft.ID, &draft.ConversationID, &draft.Body, &draft.ClientID, &errText, &draft.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	draft.Error = errText.String
	return &draft, nil
}
