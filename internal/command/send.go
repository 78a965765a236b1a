package command

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/db"
	"github.com/adamavenir/chatsync/internal/types"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message; failed sends are kept as drafts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			conversationID, err := ctx.ConversationFrom(nil)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			body := strings.Join(args, " ")
			if strings.TrimSpace(body) == "" {
				return writeCommandError(cmd, fmt.Errorf("message cannot be empty"))
			}

			draft := types.Draft{ConversationID: conversationID, Body: body, ClientID: uuid.NewString()}
			return deliverDraft(cmd, ctx, draft, false)
		},
	}
	return cmd
}

// deliverDraft posts a draft. On failure the draft is saved (or updated)
// in the outbox; on success a previously saved draft is removed.
func deliverDraft(cmd *cobra.Command, ctx *CommandContext, draft types.Draft, saved bool) error {
	reqCtx, cancel := ctx.requestContext(cmd.Context())
	msg, ok, sendErr := ctx.API.CreateMessage(reqCtx, draft.ConversationID, draft.Body, draft.ClientID)
	cancel()

	out := cmd.OutOrStdout()
	if sendErr != nil {
		conn, err := ctx.DB()
		if err != nil {
			return writeCommandError(cmd, fmt.Errorf("send failed (%v) and the draft could not be saved: %w", sendErr, err))
		}
		draft.Error = sendErr.Error()
		stored, err := db.SaveDraft(conn, draft)
		if err != nil {
			return writeCommandError(cmd, fmt.Errorf("send failed (%v) and the draft could not be saved: %w", sendErr, err))
		}
		if ctx.JSONMode {
			_ = writeJSON(out, map[string]any{"sent": false, "draft_id": stored.ID, "error": sendErr.Error()})
		}
		return writeCommandError(cmd, fmt.Errorf("send failed, saved as draft %d (retry with: %s drafts retry %d): %w", stored.ID, AppName, stored.ID, sendErr))
	}

	if saved {
		conn, err := ctx.DB()
		if err != nil {
			return writeCommandError(cmd, err)
		}
		if _, err := db.DeleteDraft(conn, draft.ID); err != nil {
			return writeCommandError(cmd, err)
		}
	}

	if ctx.JSONMode {
		payload := map[string]any{"sent": true, "client_id": draft.ClientID, "confirmed": ok}
		if ok {
			payload["message"] = messagePayload(msg)
		}
		return writeJSON(out, payload)
	}
	if ok {
		fmt.Fprintf(out, "Sent [%s]\n", msg.ID)
	} else {
		fmt.Fprintln(out, "Sent (server did not return the message)")
	}
	return nil
}
