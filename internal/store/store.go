// Package store holds the client-side view of one conversation's messages.
//
// A Store has a single writer and no locks. It is created per active
// conversation and discarded on navigation.
package store

import (
	"github.com/google/uuid"

	"github.com/adamavenir/chatsync/internal/types"
)

// Result describes the effect of a mutation.
type Result int

const (
	// Ignored means the mutation was a no-op (duplicate, or target tombstoned).
	Ignored Result = iota
	// Inserted means a new entry was appended.
	Inserted
	// Replaced means an existing entry was replaced in place.
	Replaced
	// Tombstoned means an entry was marked deleted.
	Tombstoned
	// Deferred means a delete was recorded for an id not yet seen.
	Deferred
)

func (r Result) String() string {
	switch r {
	case Ignored:
		return "ignored"
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Tombstoned:
		return "tombstoned"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Changed reports whether the mutation altered visible state.
func (r Result) Changed() bool {
	return r == Inserted || r == Replaced || r == Tombstoned
}

type entry struct {
	msg types.Message
	seq uint64
}

// Store is the authoritative view of a conversation's message list.
type Store struct {
	conversationID string
	entries        []*entry
	// index maps every held id to its position. It is the dedup oracle and
	// is consulted before every insert regardless of source.
	index             map[string]int
	pendingTombstones map[string]struct{}
	// optimistic maps correlation id to the temporary message id.
	optimistic map[string]string
	seq        uint64
}

// New creates an empty store for a conversation.
func New(conversationID string) *Store {
	return &Store{
		conversationID:    conversationID,
		index:             make(map[string]int),
		pendingTombstones: make(map[string]struct{}),
		optimistic:        make(map[string]string),
	}
}

// ConversationID returns the conversation the store belongs to.
func (s *Store) ConversationID() string {
	return s.conversationID
}

// Len returns the number of entries, tombstones included.
func (s *Store) Len() int {
	return len(s.entries)
}

// Has reports whether an entry with id is held.
func (s *Store) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns a copy of the entry with id.
func (s *Store) Get(id string) (types.Message, bool) {
	pos, ok := s.index[id]
	if !ok {
		return types.Message{}, false
	}
	return s.entries[pos].msg.Clone(), true
}

// Messages returns a copy of all entries in visual order.
func (s *Store) Messages() []types.Message {
	out := make([]types.Message, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.msg.Clone())
	}
	return out
}

// Pending returns the optimistic entries that have not been confirmed.
func (s *Store) Pending() []types.Message {
	var out []types.Message
	for _, e := range s.entries {
		if e.msg.IsTemporary() {
			out = append(out, e.msg.Clone())
		}
	}
	return out
}

// LastServerID returns the id of the last server-assigned entry.
func (s *Store) LastServerID() string {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !s.entries[i].msg.IsTemporary() {
			return s.entries[i].msg.ID
		}
	}
	return ""
}

// ApplyInsert appends a message unless its id is already known.
func (s *Store) ApplyInsert(m types.Message) Result {
	if m.ID == "" {
		return Ignored
	}
	if s.Has(m.ID) {
		return Ignored
	}
	if !m.IsTemporary() && m.CorrelationID != "" {
		if tempID, ok := s.optimistic[m.CorrelationID]; ok && s.Has(tempID) {
			return s.replaceTemp(tempID, m)
		}
	}
	next := m.Clone()
	next.ConversationID = s.conversationID
	if _, ok := s.pendingTombstones[next.ID]; ok {
		next.Deleted = true
		delete(s.pendingTombstones, next.ID)
	}
	s.append(next)
	return Inserted
}

// ApplyUpdate replaces a non-tombstoned entry. Updates for unknown ids are
// treated as inserts.
func (s *Store) ApplyUpdate(m types.Message) Result {
	pos, ok := s.index[m.ID]
	if !ok {
		return s.ApplyInsert(m)
	}
	current := s.entries[pos]
	if current.msg.Deleted {
		return Ignored
	}
	if m.Deleted {
		current.msg.Deleted = true
		current.seq = s.nextSeq()
		return Tombstoned
	}

	next := m.Clone()
	next.ConversationID = s.conversationID
	if next.AuthorDisplayName == "" {
		next.AuthorDisplayName = current.msg.AuthorDisplayName
	}
	if current.msg.IsTemporary() {
		next.Pending = current.msg.Pending
		next.Failed = current.msg.Failed
		next.CorrelationID = current.msg.CorrelationID
	} else {
		next.Pending = false
		next.Failed = false
		if next.CorrelationID == "" {
			next.CorrelationID = current.msg.CorrelationID
		}
	}
	current.msg = next
	current.seq = s.nextSeq()
	return Replaced
}

// ApplyDelete tombstones an entry in place. Deletes for unknown ids are
// remembered so a later insert arrives already tombstoned.
func (s *Store) ApplyDelete(id string) Result {
	if id == "" {
		return Ignored
	}
	pos, ok := s.index[id]
	if !ok {
		s.pendingTombstones[id] = struct{}{}
		return Deferred
	}
	current := s.entries[pos]
	if current.msg.Deleted {
		return Ignored
	}
	current.msg.Deleted = true
	current.seq = s.nextSeq()
	if current.msg.IsTemporary() && current.msg.CorrelationID != "" {
		delete(s.optimistic, current.msg.CorrelationID)
	}
	return Tombstoned
}

// AddOptimistic appends a locally-authored message that has not been
// confirmed. The correlation id is generated when draft has none; the
// temporary id is derived from it.
func (s *Store) AddOptimistic(draft types.Message) types.Message {
	next := draft.Clone()
	if next.CorrelationID == "" {
		next.CorrelationID = uuid.NewString()
	}
	if !next.IsTemporary() {
		next.ID = types.TempIDPrefix + next.CorrelationID
	}
	next.ConversationID = s.conversationID
	next.Pending = true
	next.Failed = false
	if s.Has(next.ID) {
		return s.entries[s.index[next.ID]].msg.Clone()
	}
	s.optimistic[next.CorrelationID] = next.ID
	s.append(next)
	return next.Clone()
}

// ReconcileOptimistic replaces the temporary entry with the confirmed
// message at the same position. If the confirmed id already arrived through
// a transport the temporary entry is dropped instead.
func (s *Store) ReconcileOptimistic(tempID string, confirmed types.Message) Result {
	if !s.Has(tempID) {
		return s.ApplyInsert(confirmed)
	}
	return s.replaceTemp(tempID, confirmed)
}

// MarkFailed flags an unconfirmed entry as failed.
func (s *Store) MarkFailed(tempID string) bool {
	pos, ok := s.index[tempID]
	if !ok || !types.IsTemporaryID(tempID) {
		return false
	}
	e := s.entries[pos]
	e.msg.Pending = false
	e.msg.Failed = true
	e.seq = s.nextSeq()
	return true
}

// MarkPending flags a failed entry as in flight again.
func (s *Store) MarkPending(tempID string) bool {
	pos, ok := s.index[tempID]
	if !ok || !types.IsTemporaryID(tempID) {
		return false
	}
	e := s.entries[pos]
	e.msg.Pending = true
	e.msg.Failed = false
	e.seq = s.nextSeq()
	return true
}

// RemoveOptimistic drops a temporary entry.
func (s *Store) RemoveOptimistic(tempID string) bool {
	pos, ok := s.index[tempID]
	if !ok || !types.IsTemporaryID(tempID) {
		return false
	}
	if corr := s.entries[pos].msg.CorrelationID; corr != "" {
		delete(s.optimistic, corr)
	}
	s.removeAt(pos)
	return true
}

// SetAuthorName fills in the display name on every entry by authorID. It
// returns the number of entries changed.
func (s *Store) SetAuthorName(authorID, name string) int {
	if authorID == "" || name == "" {
		return 0
	}
	changed := 0
	for _, e := range s.entries {
		if e.msg.AuthorID == authorID && e.msg.AuthorDisplayName != name {
			e.msg.AuthorDisplayName = name
			changed++
		}
	}
	return changed
}

// Mark identifies the store state at the moment a snapshot was requested.
type Mark uint64

// MarkSnapshot returns a mark to pass to SnapshotReplace together with the
// snapshot it was issued for.
func (s *Store) MarkSnapshot() Mark {
	return Mark(s.seq)
}

// SnapshotReplace replaces the entries with messages fetched at since.
// Optimistic entries not confirmed by the snapshot, and entries applied
// after since, are re-appended after it. Tombstones stay terminal: one the
// snapshot no longer lists keeps its place after the nearest older entry
// that is listed.
func (s *Store) SnapshotReplace(messages []types.Message, since Mark) {
	old := s.entries
	oldIndex := s.index

	s.entries = make([]*entry, 0, len(messages)+len(s.optimistic))
	s.index = make(map[string]int, len(messages))
	confirmed := map[string]struct{}{}

	for _, m := range messages {
		if m.ID == "" || s.Has(m.ID) || m.IsTemporary() {
			continue
		}
		next := m.Clone()
		next.ConversationID = s.conversationID
		next.Pending = false
		next.Failed = false
		if pos, ok := oldIndex[m.ID]; ok {
			prev := old[pos]
			if prev.msg.Deleted || prev.seq > uint64(since) {
				next = prev.msg.Clone()
			}
			if next.AuthorDisplayName == "" {
				next.AuthorDisplayName = prev.msg.AuthorDisplayName
			}
		}
		if _, ok := s.pendingTombstones[next.ID]; ok {
			next.Deleted = true
			delete(s.pendingTombstones, next.ID)
		}
		if next.CorrelationID != "" {
			if tempID, ok := s.optimistic[next.CorrelationID]; ok {
				confirmed[tempID] = struct{}{}
				delete(s.optimistic, next.CorrelationID)
			}
		}
		s.append(next)
	}

	listed := s.entries
	listedIndex := s.index
	kept := make(map[string][]*entry)
	anchor := ""
	for _, e := range old {
		if _, ok := listedIndex[e.msg.ID]; ok {
			anchor = e.msg.ID
			continue
		}
		if e.msg.Deleted && !e.msg.IsTemporary() {
			kept[anchor] = append(kept[anchor], e)
		}
	}

	s.entries = make([]*entry, 0, len(listed)+len(old))
	s.index = make(map[string]int, len(listed)+len(old))
	for _, e := range kept[""] {
		s.appendEntry(e)
	}
	for _, e := range listed {
		s.appendEntry(e)
		for _, t := range kept[e.msg.ID] {
			s.appendEntry(t)
		}
	}

	for _, e := range old {
		if s.Has(e.msg.ID) {
			continue
		}
		if e.msg.IsTemporary() {
			if _, ok := confirmed[e.msg.ID]; ok {
				continue
			}
			s.appendEntry(e)
			continue
		}
		if e.seq > uint64(since) {
			s.appendEntry(e)
		}
	}
}

func (s *Store) replaceTemp(tempID string, confirmed types.Message) Result {
	pos := s.index[tempID]
	temp := s.entries[pos]
	if temp.msg.CorrelationID != "" {
		delete(s.optimistic, temp.msg.CorrelationID)
	}
	if s.Has(confirmed.ID) {
		s.removeAt(pos)
		return Replaced
	}

	next := confirmed.Clone()
	next.ConversationID = s.conversationID
	next.Pending = false
	next.Failed = false
	if next.CorrelationID == "" {
		next.CorrelationID = temp.msg.CorrelationID
	}
	if next.AuthorDisplayName == "" {
		next.AuthorDisplayName = temp.msg.AuthorDisplayName
	}
	if _, ok := s.pendingTombstones[next.ID]; ok {
		next.Deleted = true
		delete(s.pendingTombstones, next.ID)
	}
	delete(s.index, tempID)
	temp.msg = next
	temp.seq = s.nextSeq()
	s.index[next.ID] = pos
	return Replaced
}

func (s *Store) append(m types.Message) {
	s.appendEntry(&entry{msg: m, seq: s.nextSeq()})
}

func (s *Store) appendEntry(e *entry) {
	s.index[e.msg.ID] = len(s.entries)
	s.entries = append(s.entries, e)
}

func (s *Store) removeAt(pos int) {
	delete(s.index, s.entries[pos].msg.ID)
	s.entries = append(s.entries[:pos], s.entries[pos+1:]...)
	for i := pos; i < len(s.entries); i++ {
		s.index[s.entries[i].msg.ID] = i
	}
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}
