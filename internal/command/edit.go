package command

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/types"
)

// NewEditCmd creates the edit command.
func NewEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <msgid> <message>",
		Short: "Edit a message you posted",
		Args:  cobra.MinimumNArgs(2),
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
			body := strings.Join(args[1:], " ")
			if strings.TrimSpace(body) == "" {
				return writeCommandError(cmd, fmt.Errorf("message cannot be empty"))
			}

			reqCtx, cancel := ctx.requestContext(cmd.Context())
			updated, ok, err := ctx.API.UpdateMessage(reqCtx, msgID, body)
			cancel()
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				payload := map[string]any{"id": msgID, "edited": true}
				if ok {
					payload["message"] = messagePayload(updated)
				}
				return writeJSON(cmd.OutOrStdout(), payload)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Edited message [%s]\n", msgID)
			return nil
		},
	}
	return cmd
}

func stripHash(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), "#")
}
