package command

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/chatsync/internal/core"
)

// fakeServer is a minimal chat API backed by in-memory state.
type fakeServer struct {
	mu        sync.Mutex
	messages  []map[string]any
	users     map[string]string
	failPosts bool
	afters    []string
	clientIDs []string
	edits     map[string]string
	deleted   []string
	auth      []string
	chatPosts []string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{users: map[string]string{}, edits: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"user": map[string]string{"id": "me", "username": "ada"}})
	})
	mux.HandleFunc("GET /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		name, ok := fs.users[r.PathValue("id")]
		fs.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user": map[string]string{"id": r.PathValue("id"), "username": name}})
	})
	mux.HandleFunc("GET /api/channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.auth = append(fs.auth, r.Header.Get("Authorization"))
		after := r.URL.Query().Get("after")
		fs.afters = append(fs.afters, after)
		out := fs.messages
		if after != "" {
			out = nil
			for i, m := range fs.messages {
				if m["id"] == after {
					out = fs.messages[i+1:]
				}
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /api/channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content  string `json:"content"`
			ClientID string `json:"clientId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.clientIDs = append(fs.clientIDs, req.ClientID)
		if fs.failPosts {
			http.Error(w, `{"error":"unavailable","message":"try later"}`, http.StatusServiceUnavailable)
			return
		}
		msg := map[string]any{
			"id": "m9", "channelId": r.PathValue("id"), "userId": "me", "username": "ada",
			"content": req.Content, "timestamp": time.Now().UTC().Format(time.RFC3339), "clientId": req.ClientID,
		}
		fs.messages = append(fs.messages, msg)
		_ = json.NewEncoder(w).Encode(msg)
	})
	mux.HandleFunc("GET /api/chats/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{
			{"id": "q1", "chatId": r.PathValue("id"), "content": "how do I sync?", "role": "user", "timestamp": "2026-01-02T15:04:05Z"},
			{"id": "q2", "chatId": r.PathValue("id"), "content": "use chatsync", "role": "assistant", "timestamp": "2026-01-02T15:04:06Z"},
		}})
	})
	mux.HandleFunc("POST /api/chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		fs.chatPosts = append(fs.chatPosts, req.Message)
		fs.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "message": map[string]any{
			"id": "q3", "chatId": r.PathValue("id"), "content": req.Message, "role": "user", "timestamp": "2026-01-02T15:04:07Z",
		}})
	})
	mux.HandleFunc("PUT /api/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		fs.edits[r.PathValue("id")] = req.Content
		fs.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "content": req.Content, "isEdited": true})
	})
	mux.HandleFunc("DELETE /api/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.deleted = append(fs.deleted, r.PathValue("id"))
		fs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return fs, server
}

func (fs *fakeServer) add(id, userID, username, content string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.messages = append(fs.messages, map[string]any{
		"id": id, "channelId": "c1", "userId": userID, "username": username,
		"content": content, "timestamp": "2026-01-02T15:04:05Z",
	})
}

func useServer(t *testing.T) *fakeServer {
	t.Helper()
	fs, server := newFakeServer(t)
	t.Setenv(core.EnvConfigDir, t.TempDir())
	t.Setenv(core.EnvAPIURL, server.URL)
	t.Setenv(core.EnvToken, "secret")
	t.Setenv(core.EnvTokenFile, "")
	t.Setenv(core.EnvDB, "")
	return fs
}

func TestDirectChatHistoryAndSend(t *testing.T) {
	fs := useServer(t)

	output, err := executeCommand(NewRootCmd("test"), "history", "chat:7")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, output)
	}
	if !strings.Contains(output, "[q1] user: how do I sync?") || !strings.Contains(output, "[q2] assistant: use chatsync") {
		t.Fatalf("unexpected output %q", output)
	}
	state, err := core.LoadState()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if got := state.Cursor("chat:7").LastSeenID; got != "q2" {
		t.Fatalf("chat cursor: got %q", got)
	}

	output, err = executeCommand(NewRootCmd("test"), "send", "--in", "chat:7", "thanks")
	if err != nil {
		t.Fatalf("send: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Sent [q3]") {
		t.Fatalf("unexpected send output %q", output)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.chatPosts) != 1 || fs.chatPosts[0] != "thanks" {
		t.Fatalf("chat posts: %v", fs.chatPosts)
	}
}

func TestHistoryPrintsAndTracksUnread(t *testing.T) {
	fs := useServer(t)
	fs.add("m1", "u2", "grace", "hello")
	fs.add("m2", "u2", "grace", "second")

	output, err := executeCommand(NewRootCmd("test"), "history", "c1")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, output)
	}
	if !strings.Contains(output, "[m1] grace: hello") || !strings.Contains(output, "[m2] grace: second") {
		t.Fatalf("unexpected output %q", output)
	}

	state, err := core.LoadState()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if got := state.Cursor("c1").LastSeenID; got != "m2" {
		t.Fatalf("expected cursor m2, got %q", got)
	}

	fs.add("m3", "u2", "grace", "third")
	output, err = executeCommand(NewRootCmd("test"), "history", "c1", "--unread")
	if err != nil {
		t.Fatalf("history --unread: %v", err)
	}
	if strings.Contains(output, "hello") || !strings.Contains(output, "[m3] grace: third") {
		t.Fatalf("unexpected unread output %q", output)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.afters[len(fs.afters)-1] != "m2" {
		t.Fatalf("expected after=m2, got %v", fs.afters)
	}
	if fs.auth[0] != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", fs.auth[0])
	}
}

func TestHistoryLastAndJSON(t *testing.T) {
	fs := useServer(t)
	fs.add("m1", "u2", "grace", "one")
	fs.add("m2", "u2", "grace", "two")
	fs.add("m3", "u2", "grace", "three")

	output, err := executeCommand(NewRootCmd("test"), "history", "c1", "--last", "2", "--json", "--peek")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var payload []map[string]any
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if len(payload) != 2 || payload[0]["id"] != "m2" || payload[1]["content"] != "three" {
		t.Fatalf("unexpected payload %v", payload)
	}

	state, err := core.LoadState()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.Cursor("c1").LastSeenID != "" {
		t.Fatalf("peek must not move the cursor")
	}
}

func TestHistoryResolvesMissingAuthorNames(t *testing.T) {
	fs := useServer(t)
	fs.users["u3"] = "ivy"
	fs.add("m1", "u3", "", "who am i")

	output, err := executeCommand(NewRootCmd("test"), "history", "--in", "c1")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, output)
	}
	if !strings.Contains(output, "[m1] ivy: who am i") {
		t.Fatalf("expected resolved name, got %q", output)
	}
}

func TestSendFailureSavesDraftForRetry(t *testing.T) {
	fs := useServer(t)
	fs.failPosts = true

	output, err := executeCommand(NewRootCmd("test"), "send", "--in", "c1", "hello", "world")
	if err == nil {
		t.Fatalf("expected send error")
	}
	if !strings.Contains(output, "saved as draft 1") {
		t.Fatalf("expected draft hint, got %q", output)
	}

	output, err = executeCommand(NewRootCmd("test"), "drafts")
	if err != nil {
		t.Fatalf("drafts: %v", err)
	}
	if !strings.Contains(output, "hello world") || !strings.Contains(output, "#c1") {
		t.Fatalf("expected draft listed, got %q", output)
	}

	fs.mu.Lock()
	fs.failPosts = false
	fs.mu.Unlock()

	output, err = executeCommand(NewRootCmd("test"), "drafts", "retry", "1")
	if err != nil {
		t.Fatalf("retry: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Sent [m9]") {
		t.Fatalf("unexpected retry output %q", output)
	}

	fs.mu.Lock()
	if len(fs.clientIDs) != 2 || fs.clientIDs[0] == "" || fs.clientIDs[0] != fs.clientIDs[1] {
		t.Fatalf("expected retry to reuse the client id, got %v", fs.clientIDs)
	}
	fs.mu.Unlock()

	output, err = executeCommand(NewRootCmd("test"), "drafts")
	if err != nil {
		t.Fatalf("drafts: %v", err)
	}
	if !strings.Contains(output, "No drafts") {
		t.Fatalf("expected drafts cleared, got %q", output)
	}
}

func TestDraftsDiscard(t *testing.T) {
	fs := useServer(t)
	fs.failPosts = true

	if _, err := executeCommand(NewRootCmd("test"), "send", "--in", "c1", "oops"); err == nil {
		t.Fatalf("expected send error")
	}
	output, err := executeCommand(NewRootCmd("test"), "drafts", "discard", "#1")
	if err != nil {
		t.Fatalf("discard: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Discarded draft 1") {
		t.Fatalf("unexpected output %q", output)
	}
	if _, err := executeCommand(NewRootCmd("test"), "drafts", "discard", "1"); err == nil {
		t.Fatalf("expected error discarding a missing draft")
	}
}

func TestSendJSON(t *testing.T) {
	useServer(t)

	output, err := executeCommand(NewRootCmd("test"), "send", "--in", "c1", "--json", "hi")
	if err != nil {
		t.Fatalf("send: %v\n%s", err, output)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if payload["sent"] != true || payload["confirmed"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestEditAndRemove(t *testing.T) {
	fs := useServer(t)

	output, err := executeCommand(NewRootCmd("test"), "edit", "#m1", "fixed", "typo")
	if err != nil {
		t.Fatalf("edit: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Edited message [m1]") {
		t.Fatalf("unexpected output %q", output)
	}

	output, err = executeCommand(NewRootCmd("test"), "rm", "m1")
	if err != nil {
		t.Fatalf("rm: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Deleted message [m1]") {
		t.Fatalf("unexpected output %q", output)
	}

	if _, err := executeCommand(NewRootCmd("test"), "rm", "temp-abc"); err == nil {
		t.Fatalf("expected error for unconfirmed message")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.edits["m1"] != "fixed typo" {
		t.Fatalf("unexpected edits %v", fs.edits)
	}
	if len(fs.deleted) != 1 || fs.deleted[0] != "m1" {
		t.Fatalf("unexpected deletes %v", fs.deleted)
	}
}
