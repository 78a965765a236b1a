package livesync

import (
	"context"
	"errors"
	"time"

	"github.com/adamavenir/chatsync/internal/clock"
	"github.com/adamavenir/chatsync/internal/reconnect"
	"github.com/adamavenir/chatsync/internal/store"
	"github.com/adamavenir/chatsync/internal/transport"
	"github.com/adamavenir/chatsync/internal/types"
)

// timerSlot is a loop-owned timer. Bumping seq invalidates callbacks that
// were already posted when the timer was stopped.
type timerSlot struct {
	timer clock.Timer
	seq   uint64
}

func (t *timerSlot) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
}

type typingEntry struct {
	name  string
	timer *timerSlot
}

// session is everything scoped to one active conversation.
type session struct {
	gen            uint64
	conversationID string
	ctx            context.Context
	cancel         context.CancelFunc

	store   *store.Store
	cursor  types.Cursor
	machine reconnect.Machine
	loaded  bool

	push transport.Transport
	poll transport.Transport

	openTimer    timerSlot
	retryTimer   timerSlot
	refetchTimer timerSlot
	noticeTimer  timerSlot
	notice       string

	confirmTimers map[string]*timerSlot
	// accepted maps sends the server accepted without returning the
	// message to the snapshot count at acceptance. A snapshot issued later
	// settles them.
	accepted    map[string]uint64
	snapshotSeq uint64
	// applied is the snapshotSeq of the newest snapshot applied. Older
	// responses are dropped.
	applied   uint64
	typing    map[string]*typingEntry
	resolving map[string]struct{}
	names     map[string]string
}

func (s *session) forgetSend(tempID string) {
	if slot, ok := s.confirmTimers[tempID]; ok {
		slot.stop()
		delete(s.confirmTimers, tempID)
	}
	delete(s.accepted, tempID)
}

func (c *Coordinator) openSession(id string) {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:            c.gen,
		conversationID: id,
		ctx:            ctx,
		cancel:         cancel,
		store:          store.New(id),
		cursor:         types.Cursor{ConversationID: id},
		machine:        reconnect.New(c.cfg.Policy),
		confirmTimers:  make(map[string]*timerSlot),
		accepted:       make(map[string]uint64),
		typing:         make(map[string]*typingEntry),
		resolving:      make(map[string]struct{}),
		names:          make(map[string]string),
	}
	c.sess = s
	c.debugf("open %s (gen %d)", id, s.gen)

	c.fetchSnapshot(s, nil)
	switch {
	case c.cfg.ForcePoll || c.cfg.NewPush == nil || !types.ParseConversation(id).HasPush():
		c.step(s, reconnect.Event{Kind: reconnect.TogglePoll})
	default:
		c.step(s, reconnect.Event{Kind: reconnect.Connect})
	}
}

// teardown cancels every timer and transport of the current session. The
// generation bump makes any callback already queued a no-op.
func (c *Coordinator) teardown() {
	s := c.sess
	if s == nil {
		return
	}
	c.gen++
	c.sess = nil

	s.cancel()
	s.openTimer.stop()
	s.retryTimer.stop()
	s.refetchTimer.stop()
	s.noticeTimer.stop()
	for _, slot := range s.confirmTimers {
		slot.stop()
	}
	for _, entry := range s.typing {
		entry.timer.stop()
	}
	if s.push != nil {
		closeTransport(s.push, "conversation closed")
		s.push = nil
	}
	if s.poll != nil {
		closeTransport(s.poll, "conversation closed")
		s.poll = nil
	}
	c.debugf("closed %s", s.conversationID)
	c.refresh()
}

func closeTransport(t transport.Transport, reason string) {
	go func() {
		_ = t.Close(reason)
	}()
}

// arm schedules fn on the loop after d. fn does not run if slot is stopped
// or re-armed first, or if the session changed.
func (c *Coordinator) arm(s *session, slot *timerSlot, d time.Duration, fn func()) {
	slot.stop()
	seq := slot.seq
	gen := s.gen
	slot.timer = c.cfg.Clock.AfterFunc(d, func() {
		c.postGen(gen, func() {
			if slot.seq != seq {
				return
			}
			slot.timer = nil
			fn()
		})
	})
}

func (c *Coordinator) step(s *session, ev reconnect.Event) {
	next, effects := s.machine.Step(ev)
	c.debugf("%v: %v -> %v %v", ev.Kind, s.machine.State, next.State, effects)
	s.machine = next
	for _, eff := range effects {
		c.apply(s, eff)
	}
}

func (c *Coordinator) apply(s *session, eff reconnect.Effect) {
	switch eff.Kind {
	case reconnect.Dial:
		c.dial(s)
	case reconnect.ArmOpenTimeout:
		c.arm(s, &s.openTimer, eff.Delay, func() {
			c.step(s, reconnect.Event{Kind: reconnect.OpenTimedOut})
		})
	case reconnect.CancelOpenTimeout:
		s.openTimer.stop()
	case reconnect.ScheduleRetry:
		c.cfg.Observer.ObserveReconnect(s.machine.Attempts)
		c.arm(s, &s.retryTimer, eff.Delay, func() {
			c.step(s, reconnect.Event{Kind: reconnect.RetryElapsed})
		})
	case reconnect.CancelRetry:
		s.retryTimer.stop()
	case reconnect.CloseTransport:
		if s.push != nil {
			closeTransport(s.push, "client closing")
			s.push = nil
		}
	case reconnect.StartPolling:
		c.startPolling(s)
	case reconnect.StopPolling:
		if s.poll != nil {
			closeTransport(s.poll, "push restored")
			s.poll = nil
		}
	case reconnect.ClearError:
		s.notice = ""
		s.noticeTimer.stop()
	case reconnect.ReportReconnecting:
		c.debugf("reconnecting %s (attempt %d)", s.conversationID, s.machine.Attempts)
	case reconnect.ReportDegraded:
		c.logf("livesync: push unavailable for %s, polling", s.conversationID)
	case reconnect.CatchUp:
		c.catchUp(s)
	}
}

func (c *Coordinator) dial(s *session) {
	if c.cfg.NewPush == nil {
		c.step(s, reconnect.Event{Kind: reconnect.OpenFailed})
		return
	}
	t := c.cfg.NewPush()
	s.push = t
	gen := s.gen
	t.OnEvent(func(ev types.Event) {
		c.postGen(gen, func() { c.handleEvent(s, t, types.SourcePush, ev) })
	})
	t.OnClose(func(code int, reason string) {
		c.postGen(gen, func() {
			if s.push != t {
				return
			}
			c.logf("livesync: push closed %d: %s", code, reason)
			s.push = nil
			c.step(s, reconnect.Event{Kind: reconnect.Closed, Code: code})
		})
	})

	ctx := s.ctx
	conversationID := s.conversationID
	creds := c.cfg.Credentials()
	go func() {
		err := t.Open(ctx, conversationID, creds)
		c.postGen(gen, func() {
			if s.push != t {
				if err == nil {
					closeTransport(t, "superseded")
				}
				return
			}
			if err != nil {
				c.logf("livesync: push open failed: %v", err)
				s.push = nil
				c.step(s, reconnect.Event{Kind: reconnect.OpenFailed})
				return
			}
			c.step(s, reconnect.Event{Kind: reconnect.Opened})
		})
	}()
}

func (c *Coordinator) startPolling(s *session) {
	if s.poll != nil || c.cfg.NewPoll == nil {
		return
	}
	t := c.cfg.NewPoll()
	if seeder, ok := t.(transport.Seeder); ok {
		seeder.Seed(s.cursor.LastSeenID)
	}
	gen := s.gen
	t.OnEvent(func(ev types.Event) {
		c.postGen(gen, func() { c.handleEvent(s, t, types.SourcePoll, ev) })
	})
	if err := t.Open(s.ctx, s.conversationID, c.cfg.Credentials()); err != nil {
		c.logf("livesync: poll open failed: %v", err)
		return
	}
	s.poll = t
}

// handleEvent applies one decoded event. Events from a transport that is
// no longer current are dropped.
func (c *Coordinator) handleEvent(s *session, t transport.Transport, source types.Source, ev types.Event) {
	switch source {
	case types.SourcePush:
		if s.push != t {
			return
		}
	case types.SourcePoll:
		if s.poll != t {
			return
		}
	}
	c.applyEvent(s, source, ev)
}

func (c *Coordinator) applyEvent(s *session, source types.Source, ev types.Event) {
	switch e := ev.(type) {
	case types.Insert:
		r := s.store.ApplyInsert(e.Message)
		c.cfg.Observer.ObserveEvent(source, ev.Kind(), r.Changed())
		if r.Changed() && !e.Message.IsTemporary() {
			s.cursor.LastSeenID = e.Message.ID
			if r == store.Inserted && c.cfg.OnMessage != nil && e.Message.AuthorID != c.cfg.Self.ID && !e.Message.Deleted {
				c.cfg.OnMessage(e.Message)
			}
			c.resolveName(s, e.Message)
		}
	case types.Update:
		r := s.store.ApplyUpdate(e.Message)
		c.cfg.Observer.ObserveEvent(source, ev.Kind(), r.Changed())
		if r == store.Inserted {
			c.resolveName(s, e.Message)
		}
	case types.Delete:
		r := s.store.ApplyDelete(e.ID)
		c.cfg.Observer.ObserveEvent(source, ev.Kind(), r.Changed())
	case types.Snapshot:
		s.snapshotSeq++
		applied := c.applySnapshot(s, e.Messages, s.snapshotSeq, s.store.MarkSnapshot())
		c.cfg.Observer.ObserveEvent(source, ev.Kind(), applied)
	case types.Presence:
		c.cfg.Observer.ObserveEvent(source, ev.Kind(), true)
		c.applyPresence(s, e)
	case types.TransportError:
		c.cfg.Observer.ObserveEvent(source, ev.Kind(), false)
		var fetchErr *transport.FetchError
		if errors.As(e.Err, &fetchErr) {
			c.logf("livesync: %v", e.Err)
			c.setNotice(s, "having trouble fetching new messages")
			return
		}
		c.debugf("%s transport error: %v", source, e.Err)
	}
}

func (c *Coordinator) applyPresence(s *session, p types.Presence) {
	if p.UserID == "" || p.UserID == c.cfg.Self.ID {
		return
	}
	entry, ok := s.typing[p.UserID]
	if !p.Typing {
		if ok {
			entry.timer.stop()
			delete(s.typing, p.UserID)
		}
		return
	}
	if !ok {
		entry = &typingEntry{timer: &timerSlot{}}
		s.typing[p.UserID] = entry
	}
	entry.name = p.Username
	if entry.name == "" {
		entry.name = p.UserID
	}
	userID := p.UserID
	c.arm(s, entry.timer, c.cfg.TypingTTL, func() {
		delete(s.typing, userID)
	})
}

func (c *Coordinator) setNotice(s *session, text string) {
	s.notice = text
	c.arm(s, &s.noticeTimer, c.cfg.NoticeTTL, func() {
		s.notice = ""
	})
}

// fetchSnapshot loads the full message list. then runs on the loop after
// the snapshot is applied or the fetch fails.
func (c *Coordinator) fetchSnapshot(s *session, then func()) {
	mark := s.store.MarkSnapshot()
	s.snapshotSeq++
	issued := s.snapshotSeq
	gen := s.gen
	ctx := s.ctx
	conversationID := s.conversationID
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		msgs, err := c.cfg.API.ListMessages(reqCtx, conversationID, "")
		c.postGen(gen, func() {
			if err != nil {
				c.logf("livesync: snapshot %s: %v", conversationID, err)
				c.setNotice(s, "could not load messages")
			} else {
				applied := c.applySnapshot(s, msgs, issued, mark)
				c.cfg.Observer.ObserveEvent(types.SourceFetch, types.Snapshot{}.Kind(), applied)
			}
			if then != nil {
				then()
			}
		})
	}()
}

func (c *Coordinator) applySnapshot(s *session, msgs []types.Message, issued uint64, mark store.Mark) bool {
	if issued < s.applied {
		c.debugf("dropped snapshot %d, %d already applied", issued, s.applied)
		return false
	}
	s.applied = issued
	s.store.SnapshotReplace(msgs, mark)
	for tempID, at := range s.accepted {
		if issued <= at {
			continue
		}
		s.store.RemoveOptimistic(tempID)
		s.forgetSend(tempID)
	}
	s.cursor.LastSeenID = s.store.LastServerID()
	s.loaded = true
	for _, m := range s.store.Messages() {
		c.resolveName(s, m)
	}
	return true
}

// catchUp fetches inserts missed while push was down.
func (c *Coordinator) catchUp(s *session) {
	after := s.cursor.LastSeenID
	if after == "" {
		return
	}
	gen := s.gen
	ctx := s.ctx
	conversationID := s.conversationID
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		msgs, err := c.cfg.API.ListMessages(reqCtx, conversationID, after)
		c.postGen(gen, func() {
			if err != nil {
				c.logf("livesync: catch-up %s: %v", conversationID, err)
				return
			}
			for _, m := range msgs {
				c.applyEvent(s, types.SourceFetch, types.Insert{Message: m})
			}
		})
	}()
}

func (c *Coordinator) resolveName(s *session, m types.Message) {
	if c.cfg.Names == nil || m.AuthorID == "" || m.AuthorDisplayName != "" {
		return
	}
	if name, ok := s.names[m.AuthorID]; ok {
		s.store.SetAuthorName(m.AuthorID, name)
		return
	}
	if _, ok := s.resolving[m.AuthorID]; ok {
		return
	}
	s.resolving[m.AuthorID] = struct{}{}
	gen := s.gen
	ctx := s.ctx
	authorID := m.AuthorID
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		name, err := c.cfg.Names.Resolve(reqCtx, authorID)
		c.postGen(gen, func() {
			if err != nil || name == "" {
				c.debugf("resolve %s: %v", authorID, err)
				delete(s.resolving, authorID)
				return
			}
			delete(s.resolving, authorID)
			s.names[authorID] = name
			s.store.SetAuthorName(authorID, name)
		})
	}()
}
