package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/db"
)

// NewDraftsCmd creates the drafts command and its subcommands.
func NewDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List messages that failed to send",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			conn, err := ctx.DB()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			filter := ""
			if cmd.Flags().Changed("in") {
				filter = ctx.Conversation
			}
			drafts, err := db.GetDrafts(conn, filter)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			out := cmd.OutOrStdout()
			if ctx.JSONMode {
				return writeJSON(out, drafts)
			}
			if len(drafts) == 0 {
				fmt.Fprintln(out, "No drafts")
				return nil
			}
			for _, d := range drafts {
				when := humanize.Time(time.Unix(d.CreatedAt, 0))
				fmt.Fprintf(out, "%d  #%s  %s  %s", d.ID, d.ConversationID, when, strings.ReplaceAll(d.Body, "\n", " "))
				if d.Error != "" {
					fmt.Fprintf(out, "  (%s)", d.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.AddCommand(newDraftsRetryCmd(), newDraftsDiscardCmd())
	return cmd
}

func newDraftsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Send a draft again with its original input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			id, err := parseDraftID(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			conn, err := ctx.DB()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			draft, err := db.GetDraft(conn, id)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if draft == nil {
				return writeCommandError(cmd, fmt.Errorf("draft %d not found", id))
			}
			return deliverDraft(cmd, ctx, *draft, true)
		},
	}
}

func newDraftsDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Delete a draft without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			id, err := parseDraftID(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			conn, err := ctx.DB()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			deleted, err := db.DeleteDraft(conn, id)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if !deleted {
				return writeCommandError(cmd, fmt.Errorf("draft %d not found", id))
			}
			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"id": id, "discarded": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded draft %d\n", id)
			return nil
		},
	}
}

func parseDraftID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(value), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid draft id: %s", value)
	}
	return id, nil
}
