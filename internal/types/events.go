package types

// Source identifies which transport delivered an event.
type Source string

const (
	SourcePush  Source = "push"
	SourcePoll  Source = "poll"
	SourceFetch Source = "fetch"
	SourceLocal Source = "local"
)

// Event is the closed set of inbound events decoded at the transport
// boundary. Only the types in this file implement it.
type Event interface {
	event()
	Kind() string
}

// Insert carries a newly created message.
type Insert struct {
	Message Message
}

// Update carries an edited message.
type Update struct {
	Message Message
}

// Delete carries the id of a removed message.
type Delete struct {
	ID string
}

// Snapshot carries the full message list for a conversation.
type Snapshot struct {
	Messages []Message
}

// Presence carries typing or presence notifications.
type Presence struct {
	UserID   string
	Username string
	Typing   bool
}

// TransportError is a non-fatal error reported by a transport.
type TransportError struct {
	Err error
}

func (Insert) event()         {}
func (Update) event()         {}
func (Delete) event()         {}
func (Snapshot) event()       {}
func (Presence) event()       {}
func (TransportError) event() {}

func (Insert) Kind() string         { return "insert" }
func (Update) Kind() string         { return "update" }
func (Delete) Kind() string         { return "delete" }
func (Snapshot) Kind() string       { return "snapshot" }
func (Presence) Kind() string       { return "presence" }
func (TransportError) Kind() string { return "error" }
