package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "chatsync"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "chatsync - live chat over WebSocket with polling fallback",
		Long:          "chatsync keeps a chat conversation in sync over a push socket and falls back to polling when the socket is unavailable.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("in", "", "conversation id, chat:<id> for a direct chat (defaults to default_conversation)")
	cmd.PersistentFlags().String("api-url", "", "chat server base URL")
	cmd.PersistentFlags().String("token-file", "", "file holding the session token")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().Bool("debug", false, "log sync internals to stderr")

	cmd.AddCommand(
		NewWatchCmd(),
		NewChatCmd(),
		NewHistoryCmd(),
		NewSendCmd(),
		NewEditCmd(),
		NewRmCmd(),
		NewDraftsCmd(),
		NewConfigCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
