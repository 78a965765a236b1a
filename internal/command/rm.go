package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/types"
)

// NewRmCmd creates the rm command.
func NewRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <msgid>",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			msgID := stripHash(args[0])
			if types.IsTemporaryID(msgID) {
				return writeCommandError(cmd, fmt.Errorf("message %s has not been confirmed yet", msgID))
			}

			reqCtx, cancel := ctx.requestContext(cmd.Context())
			err = ctx.API.DeleteMessage(reqCtx, msgID)
			cancel()
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"id": msgID, "deleted": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted message [%s]\n", msgID)
			return nil
		},
	}
	return cmd
}
