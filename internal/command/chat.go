package command

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/chat"
	"github.com/adamavenir/chatsync/internal/types"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [conversation]",
		Short: "Interactive chat mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeCommandError(cmd, fmt.Errorf("--json not supported for interactive chat"))
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			conversationID, err := ctx.ConversationFrom(args)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			forcePoll, _ := cmd.Flags().GetBool("poll")
			notify, _ := cmd.Flags().GetBool("notify")

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := chat.NewBridge()
			coord, self := newCoordinator(runCtx, ctx, syncOptions{
				ConversationID: conversationID,
				ForcePoll:      forcePoll,
				OnChange:       bridge.OnChange,
				OnError:        bridge.OnError,
				OnMessage: func(m types.Message) {
					if notify {
						go func() { _ = chat.SendNotification(m, conversationID) }()
					}
				},
			})

			if ctx.Tokens.Path() != "" {
				ctx.Tokens.OnChange = func(string) {
					if coord.View().State == types.ConnDegradedPolling {
						_ = coord.RetryPush()
					}
				}
				if err := ctx.Tokens.Watch(runCtx); err != nil && ctx.Debug {
					fmt.Fprintf(cmd.ErrOrStderr(), "[command] not watching token file: %v\n", err)
				}
			}

			if err := coord.Start(runCtx); err != nil {
				return writeCommandError(cmd, err)
			}
			err = chat.Run(runCtx, chat.Options{Controller: coord, Bridge: bridge, SelfID: self.ID})
			view := coord.View()
			coord.Stop()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return saveCursor(conversationID, view.LastSeenID)
		},
	}

	cmd.Flags().Bool("poll", false, "poll instead of opening a socket")
	cmd.Flags().Bool("notify", false, "show a desktop notification for messages from others")

	return cmd
}
