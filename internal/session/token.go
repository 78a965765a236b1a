// Package session supplies the bearer token from an external session
// store, reloading it when the token file changes on disk.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/adamavenir/chatsync/internal/transport"
)

// ErrNoToken is returned when the token file is empty.
var ErrNoToken = errors.New("token file is empty")

const defaultDebounce = 500 * time.Millisecond

// TokenFile holds the current token. Token is safe for concurrent use.
type TokenFile struct {
	path string

	// Debounce delays reloads after a burst of writes.
	Debounce time.Duration
	// OnChange runs after a reload that changed the token.
	OnChange func(token string)
	// Debug enables reload logging on stderr.
	Debug bool

	mu      sync.RWMutex
	token   string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// Load reads path once. The file holds either a bare token or a JSON object
// with a "token" field.
func Load(path string) (*TokenFile, error) {
	t := &TokenFile{path: path, Debounce: defaultDebounce}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Static returns a TokenFile that never reloads.
func Static(token string) *TokenFile {
	return &TokenFile{token: strings.TrimSpace(token)}
}

// Path returns the watched file, empty for static tokens.
func (t *TokenFile) Path() string {
	return t.path
}

// Token returns the current token.
func (t *TokenFile) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// Credentials returns the current token as transport credentials.
func (t *TokenFile) Credentials() transport.Credentials {
	return transport.Credentials{Token: t.Token()}
}

// Reload rereads the token file.
func (t *TokenFile) Reload() error {
	if t.path == "" {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return err
	}
	token, err := parseToken(data)
	if err != nil {
		return fmt.Errorf("%s: %w", t.path, err)
	}
	t.mu.Lock()
	changed := token != t.token
	t.token = token
	watching := t.watcher != nil
	t.mu.Unlock()
	if changed && t.OnChange != nil && watching {
		t.OnChange(token)
	}
	return nil
}

func parseToken(data []byte) (string, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrNoToken
	}
	if strings.HasPrefix(text, "{") {
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return "", err
		}
		text = strings.TrimSpace(payload.Token)
		if text == "" {
			return "", ErrNoToken
		}
	}
	return text, nil
}

// Watch reloads the token whenever the file is written or replaced. The
// parent directory is watched so atomic renames are seen.
func (t *TokenFile) Watch(ctx context.Context) error {
	if t.path == "" || t.watching() {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	stopCh := make(chan struct{})
	t.mu.Lock()
	t.watcher = watcher
	t.stopCh = stopCh
	t.mu.Unlock()

	t.wg.Add(1)
	go t.watchLoop(ctx, watcher, stopCh)
	return nil
}

func (t *TokenFile) watching() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.watcher != nil
}

// Close stops watching.
func (t *TokenFile) Close() error {
	t.mu.Lock()
	watcher, stopCh := t.watcher, t.stopCh
	t.watcher, t.stopCh = nil, nil
	t.mu.Unlock()
	if watcher == nil {
		return nil
	}
	close(stopCh)
	err := watcher.Close()
	t.wg.Wait()

	t.debounceMu.Lock()
	if t.debounce != nil {
		t.debounce.Stop()
		t.debounce = nil
	}
	t.debounceMu.Unlock()
	return err
}

func (t *TokenFile) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, stopCh chan struct{}) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(t.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				t.scheduleReload(stopCh)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			t.debugf("token watcher error: %v", err)
		}
	}
}

func (t *TokenFile) scheduleReload(stopCh chan struct{}) {
	t.debounceMu.Lock()
	defer t.debounceMu.Unlock()

	if t.debounce != nil {
		t.debounce.Stop()
	}
	delay := t.Debounce
	if delay <= 0 {
		delay = defaultDebounce
	}
	t.debounce = time.AfterFunc(delay, func() {
		select {
		case <-stopCh:
			return
		default:
		}
		if err := t.Reload(); err != nil {
			t.debugf("token reload failed: %v", err)
		}
	})
}

func (t *TokenFile) debugf(format string, args ...any) {
	if t.Debug {
		fmt.Fprintf(os.Stderr, "[session] "+format+"\n", args...)
	}
}
