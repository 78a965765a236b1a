package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	configFileName = "config.json"
	stateFileName  = "state.json"
	dbFileName     = "cache.db"
)

// Environment variables read after .env is loaded.
const (
	EnvConfigDir = "CHATSYNC_CONFIG_DIR"
	EnvAPIURL    = "CHATSYNC_API_URL"
	EnvWSURL     = "CHATSYNC_WS_URL"
	EnvTokenFile = "CHATSYNC_TOKEN_FILE"
	EnvToken     = "CHATSYNC_TOKEN"
	EnvDB        = "CHATSYNC_DB"
)

// ErrNoAPIURL is returned when no server has been configured.
var ErrNoAPIURL = errors.New("no API URL configured (set api_url or CHATSYNC_API_URL)")

// Config is the persisted client configuration.
type Config struct {
	Version int `json:"version"`
	// APIURL is the REST base, e.g. https://chat.example.com.
	APIURL string `json:"api_url,omitempty"`
	// WSURL overrides the socket base derived from APIURL.
	WSURL string `json:"ws_url,omitempty"`
	// TokenFile is written by an external session store.
	TokenFile           string `json:"token_file,omitempty"`
	DBPath              string `json:"db_path,omitempty"`
	DefaultConversation string `json:"default_conversation,omitempty"`
	ForcePoll           bool   `json:"force_poll,omitempty"`

	// Token is only ever taken from the environment.
	Token string `json:"-"`
}

// ConfigDir returns ~/.config/chatsync unless CHATSYNC_CONFIG_DIR is set.
func ConfigDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvConfigDir)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chatsync"), nil
}

func configPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// ReadConfig reads the config file. A missing file yields defaults.
func ReadConfig() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}
	var config Config
	if err := loadJSON(path, &config); err != nil {
		return Config{}, err
	}
	if config.Version == 0 {
		config.Version = 1
	}
	return config, nil
}

// WriteConfig atomically replaces the config file.
func WriteConfig(config Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if config.Version == 0 {
		config.Version = 1
	}
	return saveJSON(path, config)
}

// LoadEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			present = append(present, file)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnv overlays environment variables onto config.
func ApplyEnv(config Config) Config {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		config.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWSURL)); v != "" {
		config.WSURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTokenFile)); v != "" {
		config.TokenFile = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		config.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDB)); v != "" {
		config.DBPath = v
	}
	return config
}

// Load reads .env, the config file and the environment, in increasing
// precedence.
func Load() (Config, error) {
	if err := LoadEnv(); err != nil {
		return Config{}, err
	}
	config, err := ReadConfig()
	if err != nil {
		return Config{}, err
	}
	return ApplyEnv(config), nil
}

// ResolveDBPath returns the configured database path or the default under
// the config dir.
func (c Config) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbFileName), nil
}

// Validate checks the fields every networked command needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrNoAPIURL
	}
	return nil
}
