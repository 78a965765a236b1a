// Package transport delivers conversation events over a push socket or a
// polling loop. Every inbound payload is decoded once, at this boundary,
// into the closed types.Event set.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/adamavenir/chatsync/internal/types"
)

// Kind identifies a transport implementation.
type Kind string

const (
	KindPush Kind = "push"
	KindPoll Kind = "poll"
)

// Credentials authenticate a transport.
type Credentials struct {
	Token string
}

// Outbound is a client-to-server frame.
type Outbound struct {
	Type           string `json:"type"`
	ConversationID string `json:"channelId,omitempty"`
	Content        string `json:"content,omitempty"`
}

// TypingFrame builds the typing notification for a conversation.
func TypingFrame(conversationID string) Outbound {
	return Outbound{Type: "typing", ConversationID: conversationID}
}

// EventHandler receives decoded events in receive order.
type EventHandler func(types.Event)

// CloseHandler receives closes not initiated by the caller.
type CloseHandler func(code int, reason string)

// Transport is one connection to a conversation's event stream. An instance
// is opened at most once; handlers must be registered before Open.
type Transport interface {
	Kind() Kind
	OnEvent(EventHandler)
	OnClose(CloseHandler)
	Open(ctx context.Context, conversationID string, creds Credentials) error
	// Send is best effort. It returns a *NotConnectedError when the
	// transport cannot carry the frame; nothing is queued.
	Send(ctx context.Context, out Outbound) error
	// Close is idempotent and never invokes the close handler.
	Close(reason string) error
}

// Seeder is implemented by transports that resume from a cursor.
type Seeder interface {
	Seed(lastSeenID string)
}

// ErrNotConnected matches every *NotConnectedError.
var ErrNotConnected = errors.New("transport not connected")

// ErrAlreadyOpened is returned when Open is called twice on one instance.
var ErrAlreadyOpened = errors.New("transport already opened")

// NotConnectedError reports a send on a transport that cannot carry it.
type NotConnectedError struct {
	Kind Kind
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s transport not connected", e.Kind)
}

func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected
}

// ConnectError reports a failed open.
type ConnectError struct {
	Kind         Kind
	Status       int
	Unauthorized bool
	Err          error
}

func (e *ConnectError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s connect failed (%d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s connect failed: %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ParseError reports an inbound frame that could not be decoded. The frame
// is dropped; the connection stays open.
type ParseError struct {
	Frame string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse frame %q: %v", e.Frame, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FetchError reports a poll failure that persisted across ticks.
type FetchError struct {
	Consecutive int
	Err         error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("poll fetch failed %d times: %v", e.Consecutive, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
