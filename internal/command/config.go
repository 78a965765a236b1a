package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/core"
)

var configKeys = []string{"api_url", "ws_url", "token_file", "db_path", "default_conversation", "force_poll"}

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Get or set configuration",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode, _ := cmd.Flags().GetBool("json")
			config, err := core.ReadConfig()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				entries := configEntries(config)
				if jsonMode {
					return writeJSON(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No configuration set")
					return nil
				}
				fmt.Fprintln(out, "Configuration:")
				for _, key := range configKeys {
					if value, ok := entries[key]; ok {
						fmt.Fprintf(out, "  %s: %s\n", key, value)
					}
				}
				return nil
			}

			key := normalizeConfigKey(args[0])
			if len(args) == 1 {
				value, ok := configEntries(config)[key]
				if !ok {
					if !isConfigKey(key) {
						return writeCommandError(cmd, fmt.Errorf("unknown config key '%s' (known: %s)", args[0], strings.Join(configKeys, ", ")))
					}
					return writeCommandError(cmd, fmt.Errorf("config key '%s' not set", args[0]))
				}
				if jsonMode {
					return writeJSON(out, map[string]string{key: value})
				}
				fmt.Fprintf(out, "%s: %s\n", key, value)
				return nil
			}

			config, err = setConfigValue(config, key, args[1])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := core.WriteConfig(config); err != nil {
				return writeCommandError(cmd, err)
			}
			if jsonMode {
				return writeJSON(out, map[string]string{key: args[1]})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, args[1])
			return nil
		},
	}

	return cmd
}

func normalizeConfigKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

func isConfigKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}
	return false
}

func configEntries(config core.Config) map[string]string {
	entries := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			entries[key] = value
		}
	}
	set("api_url", config.APIURL)
	set("ws_url", config.WSURL)
	set("token_file", config.TokenFile)
	set("db_path", config.DBPath)
	set("default_conversation", config.DefaultConversation)
	if config.ForcePoll {
		entries["force_poll"] = "true"
	}
	return entries
}

func setConfigValue(config core.Config, key, value string) (core.Config, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "api_url":
		config.APIURL = value
	case "ws_url":
		config.WSURL = value
	case "token_file":
		config.TokenFile = value
	case "db_path":
		config.DBPath = value
	case "default_conversation":
		config.DefaultConversation = value
	case "force_poll":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return config, fmt.Errorf("force_poll must be true or false")
		}
		config.ForcePoll = enabled
	default:
		return config, fmt.Errorf("unknown config key '%s' (known: %s)", key, strings.Join(configKeys, ", "))
	}
	return config, nil
}
