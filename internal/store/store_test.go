package store

import (
	"testing"
	"time"

	"github.com/adamavenir/chatsync/internal/types"
)

func msg(id, body string) types.Message {
	return types.Message{ID: id, AuthorID: "u1", Body: body, CreatedAt: time.Unix(100, 0)}
}

func ids(s *Store) []string {
	var out []string
	for _, m := range s.Messages() {
		out = append(out, m.ID)
	}
	return out
}

func assertIDs(t *testing.T, s *Store, want ...string) {
	t.Helper()
	got := ids(s)
	if len(got) != len(want) {
		t.Fatalf("ids: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids: got %v, want %v", got, want)
		}
	}
}

func TestApplyInsertDeduplicates(t *testing.T) {
	s := New("c1")
	if r := s.ApplyInsert(msg("m1", "hi")); r != Inserted {
		t.Fatalf("first insert: got %v", r)
	}
	if r := s.ApplyInsert(msg("m1", "hi again")); r != Ignored {
		t.Fatalf("duplicate insert: got %v", r)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}
	got, _ := s.Get("m1")
	if got.Body != "hi" {
		t.Fatalf("duplicate insert changed body: %q", got.Body)
	}
	if got.ConversationID != "c1" {
		t.Fatalf("conversation id: got %q", got.ConversationID)
	}
}

func TestApplyInsertKeepsArrivalOrder(t *testing.T) {
	s := New("c1")
	late := msg("m2", "second")
	late.CreatedAt = time.Unix(50, 0)
	s.ApplyInsert(msg("m1", "first"))
	s.ApplyInsert(late)
	s.ApplyInsert(msg("m3", "third"))
	assertIDs(t, s, "m1", "m2", "m3")
	if s.LastServerID() != "m3" {
		t.Fatalf("last server id: got %q", s.LastServerID())
	}
}

func TestApplyInsertIgnoresEmptyID(t *testing.T) {
	s := New("c1")
	if r := s.ApplyInsert(types.Message{Body: "x"}); r != Ignored {
		t.Fatalf("expected ignored, got %v", r)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestApplyUpdateReplacesInPlace(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "one"))
	s.ApplyInsert(msg("m2", "two"))
	s.SetAuthorName("u1", "ada")

	edited := msg("m1", "one, edited")
	at := time.Unix(200, 0)
	edited.EditedAt = &at
	if r := s.ApplyUpdate(edited); r != Replaced {
		t.Fatalf("update: got %v", r)
	}
	assertIDs(t, s, "m1", "m2")
	got, _ := s.Get("m1")
	if got.Body != "one, edited" || !got.Edited() {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.AuthorDisplayName != "ada" {
		t.Fatalf("display name lost on update: %q", got.AuthorDisplayName)
	}
}

func TestApplyUpdateUnknownIDInserts(t *testing.T) {
	s := New("c1")
	if r := s.ApplyUpdate(msg("m9", "new")); r != Inserted {
		t.Fatalf("expected insert, got %v", r)
	}
	assertIDs(t, s, "m9")
}

func TestTombstoneIsTerminal(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "hello"))
	if r := s.ApplyDelete("m1"); r != Tombstoned {
		t.Fatalf("delete: got %v", r)
	}
	if r := s.ApplyDelete("m1"); r != Ignored {
		t.Fatalf("second delete: got %v", r)
	}
	if r := s.ApplyUpdate(msg("m1", "revived")); r != Ignored {
		t.Fatalf("update after delete: got %v", r)
	}
	if r := s.ApplyInsert(msg("m1", "revived")); r != Ignored {
		t.Fatalf("insert after delete: got %v", r)
	}
	got, ok := s.Get("m1")
	if !ok || !got.Deleted || got.Body != "hello" {
		t.Fatalf("tombstone changed: %+v", got)
	}

	s.SnapshotReplace([]types.Message{msg("m1", "from server")}, s.MarkSnapshot())
	got, _ = s.Get("m1")
	if !got.Deleted {
		t.Fatalf("snapshot resurrected tombstone")
	}
}

func TestUpdateWithDeletedFlagTombstones(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "hello"))
	gone := msg("m1", "")
	gone.Deleted = true
	if r := s.ApplyUpdate(gone); r != Tombstoned {
		t.Fatalf("expected tombstone, got %v", r)
	}
	got, _ := s.Get("m1")
	if !got.Deleted || got.Body != "hello" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestDeleteBeforeInsertLeavesTombstone(t *testing.T) {
	s := New("c1")
	if r := s.ApplyDelete("m5"); r != Deferred {
		t.Fatalf("delete unknown: got %v", r)
	}
	if s.Len() != 0 {
		t.Fatalf("deferred delete should not create entries")
	}
	if r := s.ApplyInsert(msg("m5", "late")); r != Inserted {
		t.Fatalf("insert: got %v", r)
	}
	got, _ := s.Get("m5")
	if !got.Deleted {
		t.Fatalf("expected insert to arrive tombstoned")
	}
}

func TestOptimisticReconcileReplacesInPlace(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "before"))
	temp := s.AddOptimistic(types.Message{AuthorID: "me", AuthorDisplayName: "me", Body: "hello"})
	if !temp.IsTemporary() || !temp.Pending || temp.CorrelationID == "" {
		t.Fatalf("unexpected optimistic entry: %+v", temp)
	}
	s.ApplyInsert(msg("m2", "after"))

	confirmed := types.Message{ID: "m100", AuthorID: "me", Body: "hello", CreatedAt: time.Unix(300, 0)}
	if r := s.ReconcileOptimistic(temp.ID, confirmed); r != Replaced {
		t.Fatalf("reconcile: got %v", r)
	}
	assertIDs(t, s, "m1", "m100", "m2")
	got, _ := s.Get("m100")
	if got.Pending || got.Failed {
		t.Fatalf("confirmed entry still pending: %+v", got)
	}
	if got.CorrelationID != temp.CorrelationID {
		t.Fatalf("correlation id lost")
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("expected no pending entries")
	}
}

func TestOptimisticConfirmedByTransportFirst(t *testing.T) {
	s := New("c1")
	temp := s.AddOptimistic(types.Message{AuthorID: "me", Body: "hello"})

	echo := types.Message{ID: "m100", AuthorID: "me", Body: "hello", CorrelationID: temp.CorrelationID}
	if r := s.ApplyInsert(echo); r != Replaced {
		t.Fatalf("echo insert: got %v", r)
	}
	assertIDs(t, s, "m100")

	// The HTTP response arrives afterwards.
	if r := s.ReconcileOptimistic(temp.ID, types.Message{ID: "m100", Body: "hello"}); r != Ignored {
		t.Fatalf("late reconcile: got %v", r)
	}
	assertIDs(t, s, "m100")
}

func TestReconcileDropsTempWhenIDAlreadyKnown(t *testing.T) {
	s := New("c1")
	temp := s.AddOptimistic(types.Message{AuthorID: "me", Body: "hello"})
	// Push delivered the server copy without a correlation id.
	s.ApplyInsert(msg("m100", "hello"))
	assertIDs(t, s, temp.ID, "m100")

	if r := s.ReconcileOptimistic(temp.ID, msg("m100", "hello")); r != Replaced {
		t.Fatalf("reconcile: got %v", r)
	}
	assertIDs(t, s, "m100")
}

func TestMarkFailedAndRetry(t *testing.T) {
	s := New("c1")
	temp := s.AddOptimistic(types.Message{AuthorID: "me", Body: "hello"})
	if !s.MarkFailed(temp.ID) {
		t.Fatalf("expected mark failed")
	}
	got, _ := s.Get(temp.ID)
	if !got.Failed || got.Pending {
		t.Fatalf("unexpected flags: %+v", got)
	}
	if !s.MarkPending(temp.ID) {
		t.Fatalf("expected mark pending")
	}
	got, _ = s.Get(temp.ID)
	if got.Failed || !got.Pending {
		t.Fatalf("unexpected flags after retry: %+v", got)
	}
	if s.MarkFailed("m1") {
		t.Fatalf("server ids cannot be marked failed")
	}
}

func TestRemoveOptimistic(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "a"))
	temp := s.AddOptimistic(types.Message{AuthorID: "me", Body: "hello"})
	s.ApplyInsert(msg("m2", "b"))
	if !s.RemoveOptimistic(temp.ID) {
		t.Fatalf("expected removal")
	}
	assertIDs(t, s, "m1", "m2")
	got, ok := s.Get("m2")
	if !ok || got.Body != "b" {
		t.Fatalf("index broken after removal")
	}
	if s.RemoveOptimistic("m1") {
		t.Fatalf("server ids cannot be removed")
	}
}

func TestSnapshotReplaceKeepsPendingOptimistic(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "stale"))
	temp := s.AddOptimistic(types.Message{AuthorID: "me", Body: "draft"})
	mark := s.MarkSnapshot()

	s.SnapshotReplace([]types.Message{msg("m1", "fresh"), msg("m2", "two")}, mark)
	assertIDs(t, s, "m1", "m2", temp.ID)
	got, _ := s.Get("m1")
	if got.Body != "fresh" {
		t.Fatalf("snapshot did not replace body: %q", got.Body)
	}
}

func TestSnapshotReplaceConfirmsByCorrelation(t *testing.T) {
	s := New("c1")
	temp := s.AddOptimistic(types.Message{AuthorID: "me", Body: "hello"})
	mark := s.MarkSnapshot()
	confirmed := msg("m100", "hello")
	confirmed.CorrelationID = temp.CorrelationID
	s.SnapshotReplace([]types.Message{confirmed}, mark)
	assertIDs(t, s, "m100")
}

func TestSnapshotReplaceKeepsEntriesAppliedAfterMark(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "one"))
	mark := s.MarkSnapshot()
	// A live insert lands while the snapshot request is in flight.
	s.ApplyInsert(msg("m3", "live"))
	// ...and an edit to an entry the snapshot still has in its old form.
	s.ApplyUpdate(msg("m1", "one, edited"))

	s.SnapshotReplace([]types.Message{msg("m1", "one"), msg("m2", "two")}, mark)
	assertIDs(t, s, "m1", "m2", "m3")
	got, _ := s.Get("m1")
	if got.Body != "one, edited" {
		t.Fatalf("snapshot overwrote newer local state: %q", got.Body)
	}
}

func TestSnapshotReplaceDropsEntriesBeforeMark(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "one"))
	s.ApplyInsert(msg("gone", "removed server side"))
	mark := s.MarkSnapshot()
	s.SnapshotReplace([]types.Message{msg("m1", "one")}, mark)
	assertIDs(t, s, "m1")
}

func TestSnapshotReplaceAppliesPendingTombstones(t *testing.T) {
	s := New("c1")
	s.ApplyDelete("m2")
	mark := s.MarkSnapshot()
	s.SnapshotReplace([]types.Message{msg("m1", "one"), msg("m2", "two")}, mark)
	got, _ := s.Get("m2")
	if !got.Deleted {
		t.Fatalf("expected pending tombstone applied by snapshot")
	}
	// Duplicate ids within a snapshot collapse to the first.
	mark = s.MarkSnapshot()
	s.SnapshotReplace([]types.Message{msg("m1", "one"), msg("m1", "dup")}, mark)
	assertIDs(t, s, "m1")
}

func TestSnapshotWithoutTombstoneKeepsItTerminal(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m0", "zero"))
	s.ApplyInsert(msg("m1", "hello"))
	s.ApplyDelete("m1")
	mark := s.MarkSnapshot()
	// The server no longer lists deleted messages.
	s.SnapshotReplace([]types.Message{msg("m0", "zero"), msg("m2", "two")}, mark)
	assertIDs(t, s, "m0", "m1", "m2")

	if r := s.ApplyUpdate(msg("m1", "x")); r != Ignored {
		t.Fatalf("late update after snapshot: got %v", r)
	}
	if r := s.ApplyInsert(msg("m1", "x")); r != Ignored {
		t.Fatalf("late insert after snapshot: got %v", r)
	}
	got, _ := s.Get("m1")
	if !got.Deleted || got.Body != "hello" {
		t.Fatalf("tombstone resurrected: %+v", got)
	}
}

func TestStaleSnapshotUsesItsOwnMark(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "one"))
	first := s.MarkSnapshot()
	s.ApplyInsert(msg("m5", "live"))
	s.ApplyUpdate(msg("m1", "one, edited"))
	second := s.MarkSnapshot()

	s.SnapshotReplace([]types.Message{msg("m1", "one")}, first)
	assertIDs(t, s, "m1", "m5")
	if got := s.LastServerID(); got != "m5" {
		t.Fatalf("last server id went back to %q", got)
	}
	got, _ := s.Get("m1")
	if got.Body != "one, edited" {
		t.Fatalf("stale snapshot reverted edit: %q", got.Body)
	}

	s.SnapshotReplace([]types.Message{msg("m1", "one, edited"), msg("m5", "live")}, second)
	assertIDs(t, s, "m1", "m5")
}

func TestSetAuthorName(t *testing.T) {
	s := New("c1")
	s.ApplyInsert(msg("m1", "a"))
	s.ApplyInsert(msg("m2", "b"))
	other := msg("m3", "c")
	other.AuthorID = "u2"
	s.ApplyInsert(other)

	if n := s.SetAuthorName("u1", "ada"); n != 2 {
		t.Fatalf("expected 2 changed, got %d", n)
	}
	if n := s.SetAuthorName("u1", "ada"); n != 0 {
		t.Fatalf("expected no-op second time, got %d", n)
	}
	got, _ := s.Get("m3")
	if got.AuthorDisplayName != "" {
		t.Fatalf("unexpected name on other author: %q", got.AuthorDisplayName)
	}
}

func TestMessagesReturnsCopies(t *testing.T) {
	s := New("c1")
	m := msg("m1", "a")
	m.Attachments = []string{"f1"}
	s.ApplyInsert(m)
	out := s.Messages()
	out[0].Body = "mutated"
	out[0].Attachments[0] = "mutated"
	got, _ := s.Get("m1")
	if got.Body != "a" || got.Attachments[0] != "f1" {
		t.Fatalf("store mutated through copy: %+v", got)
	}
}
