// Package livesync keeps one conversation's message list in sync over a
// push socket with a polling fallback.
//
// All session state is owned by a single loop goroutine. Transport readers,
// timers and HTTP calls only post closures to the loop; each closure is
// tagged with the session generation and dropped if the conversation has
// changed since it was created.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/adamavenir/chatsync/internal/reconnect"
	"github.com/adamavenir/chatsync/internal/transport"
	"github.com/adamavenir/chatsync/internal/types"
)

const actionQueueSize = 256

// Coordinator owns the active conversation session.
type Coordinator struct {
	cfg     Config
	limiter *rate.Limiter

	actions chan func()
	stopCh  chan struct{}
	done    chan struct{}
	changed chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	startMu   sync.Mutex

	// Loop-owned.
	gen  uint64
	sess *session

	viewMu sync.RWMutex
	view   View
}

// New creates a coordinator. Call Start before any other method.
func New(cfg Config) *Coordinator {
	cfg.defaults()
	return &Coordinator{
		cfg:     cfg,
		limiter: cfg.retryLimiter(),
		actions: make(chan func(), actionQueueSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		changed: make(chan struct{}, 1),
		view:    View{State: types.ConnDisconnected},
	}
}

// Start launches the loop and opens Config.ConversationID when set. The
// loop exits when ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.cfg.API == nil {
		return errors.New("livesync: API is required")
	}
	if c.cfg.NewPush == nil && c.cfg.NewPoll == nil {
		return errors.New("livesync: at least one transport is required")
	}
	c.startOnce.Do(func() {
		c.startMu.Lock()
		c.started = true
		c.startMu.Unlock()

		c.wg.Add(2)
		go c.loop(ctx)
		go c.notifyLoop()
	})
	if c.cfg.ConversationID != "" {
		return c.SwitchConversation(c.cfg.ConversationID)
	}
	return nil
}

// Stop tears down the session and waits for the loop to exit.
func (c *Coordinator) Stop() {
	c.startMu.Lock()
	started := c.started
	c.startMu.Unlock()
	if !started {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// View returns the latest snapshot.
func (c *Coordinator) View() View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// SwitchConversation discards the current session and opens id.
func (c *Coordinator) SwitchConversation(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoConversation
	}
	return c.do(func() error {
		c.teardown()
		c.openSession(id)
		return nil
	})
}

// ToggleTransportMode flips between push and forced polling.
func (c *Coordinator) ToggleTransportMode() error {
	return c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		if s.machine.Polling {
			if !types.ParseConversation(s.conversationID).HasPush() {
				return ErrNoPush
			}
			c.step(s, reconnect.Event{Kind: reconnect.TogglePush})
		} else {
			c.step(s, reconnect.Event{Kind: reconnect.TogglePoll})
		}
		return nil
	})
}

// RetryPush asks for a push reconnect. Attempts reset; polling continues
// until the socket opens.
func (c *Coordinator) RetryPush() error {
	if !c.limiter.Allow() {
		return ErrRetryThrottled
	}
	return c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		if !types.ParseConversation(s.conversationID).HasPush() {
			return ErrNoPush
		}
		c.step(s, reconnect.Event{Kind: reconnect.ManualRetry})
		return nil
	})
}

// Send inserts an optimistic message and posts it. It returns the
// temporary id; failures surface through the view and OnError.
func (c *Coordinator) Send(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", ErrEmptyMessage
	}
	correlationID := uuid.NewString()
	tempID := types.TempIDPrefix + correlationID
	err := c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		s.store.AddOptimistic(types.Message{
			ID:                tempID,
			CorrelationID:     correlationID,
			AuthorID:          c.cfg.Self.ID,
			AuthorDisplayName: c.cfg.Self.DisplayName,
			Body:              body,
			CreatedAt:         c.cfg.Clock.Now(),
		})
		c.dispatchSend(s, tempID, body, correlationID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return tempID, nil
}

// RetrySend re-posts a failed send with its original input.
func (c *Coordinator) RetrySend(tempID string) error {
	return c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		m, ok := s.store.Get(tempID)
		if !ok || !m.Failed {
			return ErrNotFailed
		}
		s.store.MarkPending(tempID)
		c.dispatchSend(s, tempID, m.Body, m.CorrelationID)
		return nil
	})
}

// DiscardFailed drops a failed send.
func (c *Coordinator) DiscardFailed(tempID string) error {
	return c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		m, ok := s.store.Get(tempID)
		if !ok || !m.Failed {
			return ErrNotFailed
		}
		s.forgetSend(tempID)
		s.store.RemoveOptimistic(tempID)
		return nil
	})
}

// Edit replaces a confirmed message's body.
func (c *Coordinator) Edit(messageID, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if types.IsTemporaryID(messageID) {
		return ErrTemporaryMessage
	}
	return c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		c.dispatchEdit(s, messageID, body)
		return nil
	})
}

// Delete removes a confirmed message.
func (c *Coordinator) Delete(messageID string) error {
	if types.IsTemporaryID(messageID) {
		return ErrTemporaryMessage
	}
	return c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		c.dispatchDelete(s, messageID)
		return nil
	})
}

// SendTyping notifies the conversation that the local user is typing. When
// no live transport can carry it, an informational notice is shown.
func (c *Coordinator) SendTyping() error {
	return c.do(func() error {
		s := c.sess
		if s == nil {
			return ErrNoConversation
		}
		var t transport.Transport
		if s.machine.State == reconnect.Connected && s.push != nil {
			t = s.push
		} else if s.poll != nil {
			t = s.poll
		}
		var err error
		if t == nil {
			err = &transport.NotConnectedError{Kind: transport.KindPush}
		} else {
			err = t.Send(s.ctx, transport.TypingFrame(s.conversationID))
		}
		if errors.Is(err, transport.ErrNotConnected) {
			c.setNotice(s, "typing indicators unavailable while offline or polling")
		}
		return err
	})
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.done)
	for {
		select {
		case fn := <-c.actions:
			fn()
		case <-c.stopCh:
			c.teardown()
			return
		case <-ctx.Done():
			c.teardown()
			return
		}
	}
}

func (c *Coordinator) notifyLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.changed:
			if c.cfg.OnChange != nil {
				c.cfg.OnChange(c.View())
			}
		case <-c.done:
			return
		}
	}
}

// post enqueues fn on the loop. It drops fn after the loop exits.
func (c *Coordinator) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.done:
	}
}

// postGen enqueues fn unless the session generation has moved on by the
// time it runs.
func (c *Coordinator) postGen(gen uint64, fn func()) {
	c.post(func() {
		if gen != c.gen || c.sess == nil {
			c.debugf("dropped stale callback (gen %d, current %d)", gen, c.gen)
			return
		}
		fn()
		c.refresh()
	})
}

// do runs fn on the loop and waits for its result.
func (c *Coordinator) do(fn func() error) error {
	c.startMu.Lock()
	started := c.started
	c.startMu.Unlock()
	if !started {
		return errors.New("livesync: coordinator not started")
	}
	result := make(chan error, 1)
	c.post(func() {
		err := fn()
		c.refresh()
		result <- err
	})
	select {
	case err := <-result:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// refresh publishes a new view and wakes the notifier.
func (c *Coordinator) refresh() {
	v := c.buildView(c.sess)
	c.viewMu.Lock()
	prevState := c.view.State
	c.view = v
	c.viewMu.Unlock()
	if v.State != prevState {
		c.cfg.Observer.ObserveState(v.State)
	}
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.cfg.Logger == nil {
		return
	}
	c.cfg.Logger.Printf(format, args...)
}

func (c *Coordinator) debugf(format string, args ...any) {
	if c.cfg.Debug {
		fmt.Fprintf(os.Stderr, "[livesync] "+format+"\n", args...)
	}
}

func (c *Coordinator) reportError(err error) {
	c.logf("livesync: %v", err)
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}
