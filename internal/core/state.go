package core

import (
	"path/filepath"

	"github.com/adamavenir/chatsync/internal/types"
)

// State stores the last message each conversation was read up to.
type State struct {
	Cursors map[string]types.Cursor `json:"cursors"`
}

func statePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, stateFileName), nil
}

// LoadState reads or initializes read-cursor state.
func LoadState() (*State, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	var state State
	if err := loadJSON(path, &state); err != nil {
		return nil, err
	}
	if state.Cursors == nil {
		state.Cursors = map[string]types.Cursor{}
	}
	return &state, nil
}

// SaveState writes read-cursor state to disk.
func SaveState(state *State) error {
	if state == nil {
		return nil
	}
	path, err := statePath()
	if err != nil {
		return err
	}
	if state.Cursors == nil {
		state.Cursors = map[string]types.Cursor{}
	}
	return saveJSON(path, state)
}

// Cursor returns the stored cursor for a conversation.
func (s *State) Cursor(conversationID string) types.Cursor {
	if c, ok := s.Cursors[conversationID]; ok {
		return c
	}
	return types.Cursor{ConversationID: conversationID}
}

// Advance records lastSeenID for a conversation. Temporary and empty ids
// are ignored.
func (s *State) Advance(conversationID, lastSeenID string) bool {
	if lastSeenID == "" || types.IsTemporaryID(lastSeenID) {
		return false
	}
	if s.Cursors == nil {
		s.Cursors = map[string]types.Cursor{}
	}
	if s.Cursors[conversationID].LastSeenID == lastSeenID {
		return false
	}
	s.Cursors[conversationID] = types.Cursor{ConversationID: conversationID, LastSeenID: lastSeenID}
	return true
}
