package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/adamavenir/chatsync/internal/api"
	"github.com/adamavenir/chatsync/internal/types"
)

const maxFrameExcerpt = 120

type inboundFrame struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	Messages  json.RawMessage `json:"messages,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Typing    *bool           `json:"typing,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// DecodeFrames decodes one socket payload. The server may concatenate
// several JSON frames in one payload. Frames decoded before a malformed one
// are returned with the *ParseError.
func DecodeFrames(data []byte) ([]types.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var events []types.Event
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, parseError(data, err)
		}
		ev, err := decodeFrame(raw)
		if err != nil {
			return events, parseError(raw, err)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
}

func decodeFrame(raw json.RawMessage) (types.Event, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	switch f.Type {
	case "message", "new_message":
		msg, ok := api.DecodeMessage(f.Message)
		if !ok {
			return nil, fmt.Errorf("%s frame without message", f.Type)
		}
		return types.Insert{Message: msg}, nil
	case "message_update":
		msg, ok := api.DecodeMessage(f.Message)
		if !ok {
			return nil, fmt.Errorf("%s frame without message", f.Type)
		}
		return types.Update{Message: msg}, nil
	case "message_delete":
		id := f.MessageID
		if id == "" {
			if msg, ok := api.DecodeMessage(f.Message); ok {
				id = msg.ID
			}
		}
		if id == "" {
			return nil, errors.New("message_delete frame without id")
		}
		return types.Delete{ID: id}, nil
	case "snapshot", "messages":
		msgs, err := api.DecodeMessages(f.Messages)
		if err != nil {
			return nil, err
		}
		return types.Snapshot{Messages: msgs}, nil
	case "typing", "presence":
		typing := f.Type == "typing"
		if f.Typing != nil {
			typing = *f.Typing
		}
		if f.UserID == "" {
			return nil, fmt.Errorf("%s frame without user", f.Type)
		}
		return types.Presence{UserID: f.UserID, Username: f.Username, Typing: typing}, nil
	case "error":
		text := f.Error
		if text == "" {
			text = "server reported an error"
		}
		return types.TransportError{Err: errors.New(text)}, nil
	case "":
		return nil, errors.New("frame without type")
	default:
		// Unknown frame types are ignored.
		return nil, nil
	}
}

func parseError(data []byte, err error) *ParseError {
	return &ParseError{Frame: frameExcerpt(data), Err: err}
}

// frameExcerpt shortens data to at most maxFrameExcerpt bytes without
// splitting a rune.
func frameExcerpt(data []byte) string {
	if len(data) <= maxFrameExcerpt {
		return string(data)
	}
	cut := maxFrameExcerpt
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut]) + "..."
}
