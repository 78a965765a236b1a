package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adamavenir/chatsync/internal/types"
)

const (
	defaultOpenTimeout    = 5 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultPingPeriod     = 60 * time.Second
	defaultPongWait       = 70 * time.Second
	defaultMaxMessageSize = 512 * 1024
)

// PushConfig configures the WebSocket transport.
type PushConfig struct {
	// BaseURL is the ws:// or wss:// origin. http(s) schemes are converted.
	BaseURL        string
	OpenTimeout    time.Duration
	WriteWait      time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	Dialer         *websocket.Dialer
	Logger         *log.Logger
}

func (c *PushConfig) defaults() {
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = defaultOpenTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = defaultPingPeriod
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PongWait <= c.PingPeriod {
		c.PongWait = c.PingPeriod + 10*time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
}

// Push is a WebSocket transport for one conversation.
type Push struct {
	cfg PushConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	opened  bool
	closed  bool
	onEvent EventHandler
	onClose CloseHandler
	done    chan struct{}

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewPush creates an unopened push transport.
func NewPush(cfg PushConfig) *Push {
	cfg.defaults()
	return &Push{cfg: cfg, done: make(chan struct{})}
}

func (p *Push) Kind() Kind { return KindPush }

func (p *Push) OnEvent(h EventHandler) {
	p.mu.Lock()
	p.onEvent = h
	p.mu.Unlock()
}

func (p *Push) OnClose(h CloseHandler) {
	p.mu.Lock()
	p.onClose = h
	p.mu.Unlock()
}

// SocketURL builds the socket endpoint for a conversation.
func SocketURL(base, conversationID, token string) (string, error) {
	conv := types.ParseConversation(conversationID)
	if !conv.HasPush() {
		return "", fmt.Errorf("%s has no websocket endpoint", conv)
	}
	value := strings.TrimRight(strings.TrimSpace(base), "/")
	if value == "" {
		return "", errors.New("websocket url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("websocket url must use ws:// or wss://, got %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws/channels/" + conv.ID
	parsed.RawPath = ""
	query := url.Values{}
	if token != "" {
		query.Set("token", token)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Open dials the socket. The handshake is bounded by OpenTimeout.
func (p *Push) Open(ctx context.Context, conversationID string, creds Credentials) error {
	p.mu.Lock()
	if p.opened {
		p.mu.Unlock()
		return ErrAlreadyOpened
	}
	p.opened = true
	p.mu.Unlock()

	endpoint, err := SocketURL(p.cfg.BaseURL, conversationID, creds.Token)
	if err != nil {
		return &ConnectError{Kind: KindPush, Err: err}
	}

	dialer := websocket.DefaultDialer
	if p.cfg.Dialer != nil {
		dialer = p.cfg.Dialer
	}
	d := *dialer
	d.HandshakeTimeout = p.cfg.OpenTimeout

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.OpenTimeout)
	defer cancel()
	conn, resp, err := d.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		cerr := &ConnectError{Kind: KindPush, Err: err}
		if resp != nil {
			cerr.Status = resp.StatusCode
			cerr.Unauthorized = resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
			resp.Body.Close()
		}
		return cerr
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return &ConnectError{Kind: KindPush, Err: errors.New("closed during open")}
	}
	p.conn = conn
	p.mu.Unlock()

	conn.SetReadLimit(p.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(p.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(p.cfg.PongWait))
	})

	logf(p.cfg.Logger, "push: connected to %s", conversationID)
	p.wg.Add(2)
	go p.readLoop(conn)
	go p.pingLoop(conn)
	return nil
}

// Send writes an outbound frame.
func (p *Push) Send(ctx context.Context, out Outbound) error {
	p.mu.Lock()
	conn := p.conn
	closed := p.closed
	p.mu.Unlock()
	if conn == nil || closed {
		return &NotConnectedError{Kind: KindPush}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(p.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("push send: %w", err)
	}
	return nil
}

// Close sends a normal closure and tears down the connection.
func (p *Push) Close(reason string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	close(p.done)
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	p.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(p.cfg.WriteWait))
	p.writeMu.Unlock()
	err := conn.Close()
	p.wg.Wait()
	return err
}

func (p *Push) readLoop(conn *websocket.Conn) {
	defer p.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.finish(err)
			return
		}
		events, perr := DecodeFrames(data)
		for _, ev := range events {
			p.emit(ev)
		}
		if perr != nil {
			logf(p.cfg.Logger, "push: dropped frame: %v", perr)
			p.emit(types.TransportError{Err: perr})
		}
	}
}

func (p *Push) pingLoop(conn *websocket.Conn) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.cfg.WriteWait))
			p.writeMu.Unlock()
			if err != nil {
				logf(p.cfg.Logger, "push: ping failed: %v", err)
				return
			}
		}
	}
}

// finish handles a read failure. Closes initiated through Close are not
// reported.
func (p *Push) finish(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	conn := p.conn
	handler := p.onClose
	p.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	code := websocket.CloseAbnormalClosure
	reason := err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
		reason = closeErr.Text
	}
	if reason == "" {
		reason = CloseReason(code)
	}
	logf(p.cfg.Logger, "push: closed %d (%s)", code, CloseReason(code))
	if handler != nil {
		handler(code, reason)
	}
}

func (p *Push) emit(ev types.Event) {
	p.mu.Lock()
	handler := p.onEvent
	closed := p.closed
	p.mu.Unlock()
	if handler == nil || closed {
		return
	}
	handler(ev)
}
