package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/adamavenir/chatsync/internal/clock"
	"github.com/adamavenir/chatsync/internal/types"
)

const (
	defaultPollInterval        = 5 * time.Second
	defaultPollRequestTimeout  = 10 * time.Second
	defaultFetchErrorThreshold = 3
)

// MessageLister fetches messages newer than a cursor.
type MessageLister interface {
	ListMessages(ctx context.Context, conversationID, after string) ([]types.Message, error)
}

// PollConfig configures the polling transport.
type PollConfig struct {
	Lister              MessageLister
	Clock               clock.Clock
	Interval            time.Duration
	RequestTimeout      time.Duration
	FetchErrorThreshold int
	Logger              *log.Logger
}

func (c *PollConfig) defaults() {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Interval <= 0 {
		c.Interval = defaultPollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultPollRequestTimeout
	}
	if c.FetchErrorThreshold <= 0 {
		c.FetchErrorThreshold = defaultFetchErrorThreshold
	}
}

// Poll fetches new messages on a fixed interval. It only ever emits Insert
// events; edits and deletions are not observed while polling.
type Poll struct {
	cfg PollConfig

	mu             sync.Mutex
	conversationID string
	cursor         string
	opened         bool
	closed         bool
	timer          clock.Timer
	failures       int
	onEvent        EventHandler
	cancel         context.CancelFunc
}

// NewPoll creates an unopened poll transport.
func NewPoll(cfg PollConfig) *Poll {
	cfg.defaults()
	return &Poll{cfg: cfg}
}

func (p *Poll) Kind() Kind { return KindPoll }

func (p *Poll) OnEvent(h EventHandler) {
	p.mu.Lock()
	p.onEvent = h
	p.mu.Unlock()
}

// OnClose is accepted for interface parity; a poll transport never closes
// on its own.
func (p *Poll) OnClose(CloseHandler) {}

// Seed sets the cursor the first fetch resumes after.
func (p *Poll) Seed(lastSeenID string) {
	p.mu.Lock()
	p.cursor = lastSeenID
	p.mu.Unlock()
}

// Cursor returns the id of the newest message fetched.
func (p *Poll) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Open arms the polling timer. Credentials are carried by the lister.
func (p *Poll) Open(ctx context.Context, conversationID string, _ Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return ErrAlreadyOpened
	}
	p.opened = true
	p.conversationID = conversationID
	p.timer = p.cfg.Clock.AfterFunc(p.cfg.Interval, p.tick)
	logf(p.cfg.Logger, "poll: started for %s after %q", conversationID, p.cursor)
	return nil
}

// Send always fails: polling has no outbound channel.
func (p *Poll) Send(context.Context, Outbound) error {
	return &NotConnectedError{Kind: KindPoll}
}

// Close stops polling. An in-flight fetch is cancelled and its result
// discarded.
func (p *Poll) Close(string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

func (p *Poll) tick() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	conversationID := p.conversationID
	cursor := p.cursor
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	p.cancel = cancel
	p.mu.Unlock()

	msgs, err := p.cfg.Lister.ListMessages(ctx, conversationID, cursor)
	cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.cancel = nil
	var events []types.Event
	if err != nil {
		p.failures++
		logf(p.cfg.Logger, "poll: fetch failed (%d): %v", p.failures, err)
		if p.failures == p.cfg.FetchErrorThreshold {
			events = append(events, types.TransportError{Err: &FetchError{Consecutive: p.failures, Err: err}})
		}
	} else {
		p.failures = 0
		for _, m := range msgs {
			if m.ID == "" || m.IsTemporary() {
				continue
			}
			p.cursor = m.ID
			events = append(events, types.Insert{Message: m})
		}
	}
	handler := p.onEvent
	p.timer = p.cfg.Clock.AfterFunc(p.cfg.Interval, p.tick)
	p.mu.Unlock()

	if handler == nil {
		return
	}
	for _, ev := range events {
		handler(ev)
	}
}
