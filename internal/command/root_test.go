package command

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/core"
)

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommandVersion(t *testing.T) {
	cmd := NewRootCmd("test")

	output, err := executeCommand(cmd, "--version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.Contains(output, "chatsync version test") {
		t.Fatalf("expected version output, got %q", output)
	}
}

func TestRootCommandHelp(t *testing.T) {
	cmd := NewRootCmd("test")

	output, err := executeCommand(cmd)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.Contains(output, "falls back to polling") {
		t.Fatalf("expected help output, got %q", output)
	}
}

func TestConfigSetAndGet(t *testing.T) {
	t.Setenv(core.EnvConfigDir, t.TempDir())

	output, err := executeCommand(NewRootCmd("test"), "config", "api-url", "https://chat.example.com")
	if err != nil {
		t.Fatalf("set: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Set api_url = https://chat.example.com") {
		t.Fatalf("unexpected set output %q", output)
	}

	output, err = executeCommand(NewRootCmd("test"), "config", "api_url")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(output) != "api_url: https://chat.example.com" {
		t.Fatalf("unexpected get output %q", output)
	}

	if _, err := executeCommand(NewRootCmd("test"), "config", "force_poll", "sometimes"); err == nil {
		t.Fatalf("expected error for non-boolean force_poll")
	}
	if _, err := executeCommand(NewRootCmd("test"), "config", "nope"); err == nil {
		t.Fatalf("expected error for unknown key")
	}

	config, err := core.ReadConfig()
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if config.APIURL != "https://chat.example.com" || config.ForcePoll {
		t.Fatalf("unexpected persisted config %+v", config)
	}
}

func TestConfigListEmpty(t *testing.T) {
	t.Setenv(core.EnvConfigDir, t.TempDir())

	output, err := executeCommand(NewRootCmd("test"), "config")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(output, "No configuration set") {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestMissingAPIURLShowsHint(t *testing.T) {
	t.Setenv(core.EnvConfigDir, t.TempDir())
	t.Setenv(core.EnvAPIURL, "")

	output, err := executeCommand(NewRootCmd("test"), "history", "c1")
	if err == nil {
		t.Fatalf("expected error without api url")
	}
	if !strings.Contains(output, "Hint: chatsync config api_url") {
		t.Fatalf("expected hint, got %q", output)
	}
}
