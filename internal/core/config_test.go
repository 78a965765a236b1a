package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func useConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	for _, key := range []string{EnvAPIURL, EnvWSURL, EnvTokenFile, EnvToken, EnvDB} {
		t.Setenv(key, "")
	}
	return dir
}

func TestReadConfigMissingFile(t *testing.T) {
	useConfigDir(t)
	config, err := ReadConfig()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if config.Version != 1 || config.APIURL != "" {
		t.Fatalf("unexpected defaults %+v", config)
	}
	if err := config.Validate(); err != ErrNoAPIURL {
		t.Fatalf("expected ErrNoAPIURL, got %v", err)
	}
}

func TestWriteConfigRoundTripAndEnvOverride(t *testing.T) {
	dir := useConfigDir(t)
	if err := WriteConfig(Config{APIURL: "https://chat.example.com", DefaultConversation: "general", Token: "secret"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatalf("token must not be persisted: %s", data)
	}

	t.Setenv(EnvAPIURL, "http://localhost:8080")
	t.Setenv(EnvToken, "from-env")
	config, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if config.APIURL != "http://localhost:8080" || config.Token != "from-env" || config.DefaultConversation != "general" {
		t.Fatalf("unexpected config %+v", config)
	}
	dbPath, err := config.ResolveDBPath()
	if err != nil {
		t.Fatalf("db path: %v", err)
	}
	if dbPath != filepath.Join(dir, "cache.db") {
		t.Fatalf("unexpected db path %s", dbPath)
	}
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	useConfigDir(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("CHATSYNC_WS_URL=wss://ws.example.com\nCHATSYNC_API_URL=https://ignored\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv(EnvAPIURL, "https://kept")
	// t.Setenv with "" leaves the variable set, so unset it for godotenv.
	os.Unsetenv(EnvWSURL)
	t.Cleanup(func() { os.Unsetenv(EnvWSURL) })

	if err := LoadEnv(envFile, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load env: %v", err)
	}
	config := ApplyEnv(Config{})
	if config.WSURL != "wss://ws.example.com" || config.APIURL != "https://kept" {
		t.Fatalf("unexpected config %+v", config)
	}
}

func TestStateAdvanceAndPersist(t *testing.T) {
	useConfigDir(t)
	state, err := LoadState()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.Cursor("c1").LastSeenID != "" {
		t.Fatalf("expected empty cursor")
	}
	if !state.Advance("c1", "m5") {
		t.Fatalf("expected advance")
	}
	if state.Advance("c1", "m5") || state.Advance("c1", "temp-x") || state.Advance("c1", "") {
		t.Fatalf("unexpected advance")
	}
	if err := SaveState(state); err != nil {
		t.Fatalf("save: %v", err)
	}
	reloaded, err := LoadState()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Cursor("c1"); got.LastSeenID != "m5" || got.ConversationID != "c1" {
		t.Fatalf("unexpected cursor %+v", got)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)
	cases := map[string]time.Time{
		"30m":                  now.Add(-30 * time.Minute),
		"2h":                   now.Add(-2 * time.Hour),
		"1w":                   now.Add(-7 * 24 * time.Hour),
		"today":                time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		"yesterday":            time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
		"2024-05-01T00:00:00Z": time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	for expr, want := range cases {
		got, err := ParseSince(expr, now)
		if err != nil {
			t.Fatalf("%s: %v", expr, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%s: got %v want %v", expr, got, want)
		}
	}
	for _, bad := range []string{"", "h", "0h", "5x", "soon"} {
		if _, err := ParseSince(bad, now); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
