package livesync

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/adamavenir/chatsync/internal/clock"
	"github.com/adamavenir/chatsync/internal/reconnect"
	"github.com/adamavenir/chatsync/internal/transport"
	"github.com/adamavenir/chatsync/internal/types"
)

// API is the REST surface the coordinator depends on.
type API interface {
	ListMessages(ctx context.Context, conversationID, after string) ([]types.Message, error)
	CreateMessage(ctx context.Context, conversationID, body, clientID string) (types.Message, bool, error)
	UpdateMessage(ctx context.Context, messageID, body string) (types.Message, bool, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// NameResolver looks up author display names.
type NameResolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Observer receives sync telemetry. Calls happen on the coordinator loop
// and must not block.
type Observer interface {
	ObserveEvent(source types.Source, kind string, applied bool)
	ObserveState(state types.ConnState)
	ObserveReconnect(attempt int)
	ObserveSendFailure()
}

type noopObserver struct{}

func (noopObserver) ObserveEvent(types.Source, string, bool) {}
func (noopObserver) ObserveState(types.ConnState)            {}
func (noopObserver) ObserveReconnect(int)                    {}
func (noopObserver) ObserveSendFailure()                     {}

// Config holds coordinator options.
type Config struct {
	// ConversationID is opened on Start when set.
	ConversationID string
	API            API
	// NewPush and NewPoll create one transport per connection attempt.
	NewPush     func() transport.Transport
	NewPoll     func() transport.Transport
	Credentials func() transport.Credentials
	Names       NameResolver
	Observer    Observer
	Clock       clock.Clock
	Policy      reconnect.Policy
	// Self is the local user; optimistic messages carry this author.
	Self types.Author
	// ForcePoll starts every conversation in polling mode.
	ForcePoll bool

	ConfirmTimeout time.Duration
	RefetchDelay   time.Duration
	TypingTTL      time.Duration
	NoticeTTL      time.Duration
	RequestTimeout time.Duration
	// RetryEvery bounds manual push retries.
	RetryEvery time.Duration

	// OnChange receives a fresh View after state changes. Calls are
	// coalesced and made from a dedicated goroutine.
	OnChange func(View)
	// OnError receives send failures and failed edits or deletes.
	OnError func(error)
	// OnMessage receives inserts authored by other users. It runs on the
	// loop and must not block.
	OnMessage func(types.Message)

	Logger *log.Logger
	Debug  bool
}

// DefaultConfig returns default timings.
func DefaultConfig() Config {
	return Config{
		Policy:         reconnect.DefaultPolicy(),
		ConfirmTimeout: 15 * time.Second,
		RefetchDelay:   500 * time.Millisecond,
		TypingTTL:      3 * time.Second,
		NoticeTTL:      5 * time.Second,
		RequestTimeout: 10 * time.Second,
		RetryEvery:     2 * time.Second,
	}
}

func (c *Config) defaults() {
	def := DefaultConfig()
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Observer == nil {
		c.Observer = noopObserver{}
	}
	if c.Credentials == nil {
		c.Credentials = func() transport.Credentials { return transport.Credentials{} }
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.RefetchDelay <= 0 {
		c.RefetchDelay = def.RefetchDelay
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = def.TypingTTL
	}
	if c.NoticeTTL <= 0 {
		c.NoticeTTL = def.NoticeTTL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.RetryEvery <= 0 {
		c.RetryEvery = def.RetryEvery
	}
}

func (c Config) retryLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(c.RetryEvery), 1)
}
