package command

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/authors"
	"github.com/adamavenir/chatsync/internal/core"
	"github.com/adamavenir/chatsync/internal/types"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [conversation]",
		Short: "Print recent messages from a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			conversationID, err := ctx.ConversationFrom(args)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			last, _ := cmd.Flags().GetInt("last")
			sinceValue, _ := cmd.Flags().GetString("since")
			unread, _ := cmd.Flags().GetBool("unread")
			peek, _ := cmd.Flags().GetBool("peek")

			var since time.Time
			if sinceValue != "" {
				since, err = core.ParseSince(sinceValue, time.Now())
				if err != nil {
					return writeCommandError(cmd, err)
				}
			}

			state, err := core.LoadState()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			after := ""
			if unread {
				after = state.Cursor(conversationID).LastSeenID
			}

			reqCtx, cancel := ctx.requestContext(cmd.Context())
			msgs, err := ctx.API.ListMessages(reqCtx, conversationID, after)
			cancel()
			if err != nil {
				return writeCommandError(cmd, err)
			}

			latest := ""
			for _, m := range msgs {
				if m.ID != "" && !m.IsTemporary() {
					latest = m.ID
				}
			}
			msgs = filterHistory(msgs, since, last)
			resolveAuthorNames(cmd.Context(), ctx, msgs)

			out := cmd.OutOrStdout()
			if len(msgs) == 0 && !ctx.JSONMode {
				fmt.Fprintln(out, "No messages")
			} else if err := printMessages(out, ctx.JSONMode, msgs, ""); err != nil {
				return writeCommandError(cmd, err)
			}

			if !peek && state.Advance(conversationID, latest) {
				if err := core.SaveState(state); err != nil {
					return writeCommandError(cmd, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("last", 50, "show last N messages (0 for all)")
	cmd.Flags().String("since", "", "only messages after a time (30m, 2h, today, RFC 3339)")
	cmd.Flags().Bool("unread", false, "only messages after the last one read")
	cmd.Flags().Bool("peek", false, "do not mark messages as read")

	return cmd
}

func filterHistory(msgs []types.Message, since time.Time, last int) []types.Message {
	rows := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if !since.IsZero() && m.CreatedAt.Before(since) {
			continue
		}
		rows = append(rows, m)
	}
	if last > 0 && len(rows) > last {
		rows = rows[len(rows)-last:]
	}
	return rows
}

// resolveAuthorNames fills missing display names in place, best effort.
func resolveAuthorNames(parent context.Context, ctx *CommandContext, msgs []types.Message) {
	conn, err := ctx.DB()
	if err != nil {
		conn = nil
	}
	cache := authors.New(ctx.API, conn)
	for i := range msgs {
		if msgs[i].AuthorDisplayName != "" {
			continue
		}
		reqCtx, cancel := ctx.requestContext(parent)
		name, err := cache.Resolve(reqCtx, msgs[i].AuthorID)
		cancel()
		if err == nil {
			msgs[i].AuthorDisplayName = name
		}
	}
}
