package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adamavenir/chatsync/internal/livesync"
)

// Bridge forwards coordinator callbacks into a running program. Callbacks
// that arrive before Attach are held and the latest view is replayed.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
	pending *livesync.View
}

// NewBridge creates an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach starts forwarding to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	if pending != nil {
		go p.Send(viewMsg{view: *pending})
	}
}

// Detach stops forwarding.
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.program = nil
	b.mu.Unlock()
}

// OnChange is a livesync.Config OnChange callback.
func (b *Bridge) OnChange(v livesync.View) {
	b.mu.Lock()
	p := b.program
	if p == nil {
		b.pending = &v
	}
	b.mu.Unlock()
	if p != nil {
		p.Send(viewMsg{view: v})
	}
}

// OnError is a livesync.Config OnError callback. It runs on the
// coordinator loop, so the send happens on its own goroutine.
func (b *Bridge) OnError(err error) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		go p.Send(errMsg{err: err})
	}
}
