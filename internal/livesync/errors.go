package livesync

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConversation is returned when no conversation is active.
	ErrNoConversation = errors.New("no active conversation")
	// ErrEmptyMessage is returned for blank sends and edits.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTemporaryMessage is returned for edits or deletes of unconfirmed messages.
	ErrTemporaryMessage = errors.New("message is not confirmed yet")
	// ErrNotFailed is returned when retrying or discarding a send that has not failed.
	ErrNotFailed = errors.New("message has not failed")
	// ErrRetryThrottled is returned when manual retries come too fast.
	ErrRetryThrottled = errors.New("retry throttled")
	// ErrConfirmTimeout marks sends that were never confirmed.
	ErrConfirmTimeout = errors.New("send was not confirmed in time")
	// ErrNoPush is returned when switching a conversation without a push
	// socket, such as a direct chat, over to push.
	ErrNoPush = errors.New("conversation has no live socket, polling only")
	// ErrStopped is returned after the coordinator stops.
	ErrStopped = errors.New("coordinator stopped")
)

// SendFailedError reports a send that did not reach the server. Body holds
// the original input so it can be retried.
type SendFailedError struct {
	ConversationID string
	TempID         string
	Body           string
	Err            error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.ConversationID, e.Err)
}

func (e *SendFailedError) Unwrap() error {
	return e.Err
}

// RequestError reports a failed edit or delete.
type RequestError struct {
	Op        string
	MessageID string
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
