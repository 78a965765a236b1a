package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/api"
	"github.com/adamavenir/chatsync/internal/core"
	"github.com/adamavenir/chatsync/internal/session"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	switch {
	case errors.Is(err, api.ErrUnauthorized):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the session token was rejected. Sign in again to refresh the token file.")
	case errors.Is(err, core.ErrNoAPIURL):
		fmt.Fprintf(cmd.ErrOrStderr(), "Hint: %s config api_url https://chat.example.com\n", AppName)
	case errors.Is(err, session.ErrNoToken):
		fmt.Fprintf(cmd.ErrOrStderr(), "Hint: set token_file or %s\n", core.EnvToken)
	case isSchemaError(err):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the local cache looks out of date. Remove it and retry.")
	}

	return err
}

// isSchemaError checks if an error is a SQLite schema mismatch.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "has no column")
}
