package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adamavenir/chatsync/internal/types"
)

type wsServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	paths chan string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s := &wsServer{conns: make(chan *websocket.Conn, 4), paths: make(chan string, 4)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "bad" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s.paths <- r.URL.Path + "?" + r.URL.RawQuery
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection")
		return nil
	}
}

type recorder struct {
	mu     sync.Mutex
	events []types.Event
	closes []int
	signal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{signal: make(chan struct{}, 64)}
}

func (r *recorder) onEvent(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) onClose(code int, _ string) {
	r.mu.Lock()
	r.closes = append(r.closes, code)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		got := len(r.events) + len(r.closes)
		r.mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d callbacks, got %d", n, got)
		}
	}
}

func TestPushDeliversDecodedEvents(t *testing.T) {
	server := newWSServer(t)
	rec := newRecorder()
	push := NewPush(PushConfig{BaseURL: server.wsURL()})
	push.OnEvent(rec.onEvent)
	push.OnClose(rec.onClose)

	if err := push.Open(context.Background(), "c1", Credentials{Token: "tok"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer push.Close("test done")
	conn := server.accept(t)
	if path := <-server.paths; path != "/ws/channels/c1?token=tok" {
		t.Fatalf("unexpected path %q", path)
	}

	payload := `{"type":"message","message":{"id":"m1","userId":"u1","content":"hi","timestamp":"2024-01-01T00:00:00Z"}}` +
		`{"type":"message_delete","messageId":"m0"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message_update","message":{"id":"m1","content":"edited","isEdited":true}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.wait(t, 3)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	ins, ok := rec.events[0].(types.Insert)
	if !ok || ins.Message.ID != "m1" || ins.Message.Body != "hi" {
		t.Fatalf("unexpected first event %#v", rec.events[0])
	}
	if del, ok := rec.events[1].(types.Delete); !ok || del.ID != "m0" {
		t.Fatalf("unexpected second event %#v", rec.events[1])
	}
	if upd, ok := rec.events[2].(types.Update); !ok || !upd.Message.Edited() {
		t.Fatalf("unexpected third event %#v", rec.events[2])
	}
}

func TestPushMalformedFrameKeepsConnection(t *testing.T) {
	server := newWSServer(t)
	rec := newRecorder()
	push := NewPush(PushConfig{BaseURL: server.wsURL()})
	push.OnEvent(rec.onEvent)
	push.OnClose(rec.onClose)
	if err := push.Open(context.Background(), "c1", Credentials{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer push.Close("")
	conn := server.accept(t)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","message":{"id":"m2","content":"ok"}}`))
	rec.wait(t, 2)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	terr, ok := rec.events[0].(types.TransportError)
	var perr *ParseError
	if !ok || !errors.As(terr.Err, &perr) {
		t.Fatalf("expected parse error event, got %#v", rec.events[0])
	}
	if _, ok := rec.events[1].(types.Insert); !ok {
		t.Fatalf("expected insert after malformed frame, got %#v", rec.events[1])
	}
	if len(rec.closes) != 0 {
		t.Fatalf("malformed frame closed the connection")
	}
}

func TestPushReportsServerClose(t *testing.T) {
	server := newWSServer(t)
	rec := newRecorder()
	push := NewPush(PushConfig{BaseURL: server.wsURL()})
	push.OnEvent(rec.onEvent)
	push.OnClose(rec.onClose)
	if err := push.Open(context.Background(), "c1", Credentials{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	conn := server.accept(t)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseServiceRestart, "restarting"),
		time.Now().Add(time.Second))
	rec.wait(t, 1)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.closes) != 1 || rec.closes[0] != websocket.CloseServiceRestart {
		t.Fatalf("unexpected closes %v", rec.closes)
	}
	if err := push.Send(context.Background(), TypingFrame("c1")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected after close, got %v", err)
	}
}

func TestPushCallerCloseDoesNotNotify(t *testing.T) {
	server := newWSServer(t)
	rec := newRecorder()
	push := NewPush(PushConfig{BaseURL: server.wsURL()})
	push.OnClose(rec.onClose)
	if err := push.Open(context.Background(), "c1", Credentials{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	conn := server.accept(t)
	if err := push.Close("switching"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := push.Close("again"); err != nil {
		t.Fatalf("second close: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal closure at server, got %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.closes) != 0 {
		t.Fatalf("close handler invoked for caller close")
	}
}

func TestPushUnauthorizedConnectError(t *testing.T) {
	server := newWSServer(t)
	push := NewPush(PushConfig{BaseURL: server.wsURL()})
	err := push.Open(context.Background(), "c1", Credentials{Token: "bad"})
	var cerr *ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if !cerr.Unauthorized || cerr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected connect error %+v", cerr)
	}
	if err := push.Open(context.Background(), "c1", Credentials{}); !errors.Is(err, ErrAlreadyOpened) {
		t.Fatalf("expected ErrAlreadyOpened, got %v", err)
	}
}

func TestPushSendWritesJSON(t *testing.T) {
	server := newWSServer(t)
	push := NewPush(PushConfig{BaseURL: server.wsURL()})
	if err := push.Send(context.Background(), TypingFrame("c1")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected before open, got %v", err)
	}
	if err := push.Open(context.Background(), "c1", Credentials{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer push.Close("")
	conn := server.accept(t)
	if err := push.Send(context.Background(), TypingFrame("c1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"type":"typing","channelId":"c1"}` {
		t.Fatalf("unexpected frame %s", data)
	}
}

func TestSocketURL(t *testing.T) {
	got, err := SocketURL("https://chat.example.com/", "general room", "a b")
	if err != nil {
		t.Fatalf("socket url: %v", err)
	}
	if got != "wss://chat.example.com/ws/channels/general%20room?token=a+b" {
		t.Fatalf("got %q", got)
	}
	if _, err := SocketURL("ftp://x", "c1", ""); err == nil {
		t.Fatalf("expected scheme error")
	}
	got, err = SocketURL("https://chat.example.com", "channel:c1", "")
	if err != nil || got != "wss://chat.example.com/ws/channels/c1" {
		t.Fatalf("channel prefix: %q %v", got, err)
	}
	if _, err := SocketURL("https://chat.example.com", "chat:42", ""); err == nil {
		t.Fatalf("expected error for direct chat")
	}
}

func TestCloseReason(t *testing.T) {
	if CloseReason(1006) != "abnormal closure" {
		t.Fatalf("1006: %q", CloseReason(1006))
	}
	if CloseReason(4001) != "application close 4001" {
		t.Fatalf("4001: %q", CloseReason(4001))
	}
}
