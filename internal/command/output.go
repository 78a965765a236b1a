package command

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/adamavenir/chatsync/internal/api"
	"github.com/adamavenir/chatsync/internal/render"
	"github.com/adamavenir/chatsync/internal/types"
)

func writeJSON(out io.Writer, value any) error {
	return json.NewEncoder(out).Encode(value)
}

// messagePayload is the JSON shape printed for messages, matching the
// server wire format.
func messagePayload(m types.Message) api.WireMessage {
	return api.FromMessage(m)
}

func printMessages(out io.Writer, jsonMode bool, msgs []types.Message, selfID string) error {
	if jsonMode {
		payload := make([]api.WireMessage, 0, len(msgs))
		for _, m := range msgs {
			payload = append(payload, messagePayload(m))
		}
		return writeJSON(out, payload)
	}
	now := time.Now()
	for _, item := range render.Items(msgs, selfID, now) {
		fmt.Fprintln(out, render.PlainLine(item))
	}
	return nil
}
