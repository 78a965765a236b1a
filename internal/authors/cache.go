// Package authors resolves user ids to display names, caching results in
// memory and in the local database.
package authors

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/adamavenir/chatsync/internal/db"
	"github.com/adamavenir/chatsync/internal/types"
)

// ErrUnknownAuthor is returned when the server has no name for a user.
var ErrUnknownAuthor = errors.New("author has no display name")

// UserFetcher loads a user from the server.
type UserFetcher interface {
	GetUser(ctx context.Context, userID string) (types.Author, error)
}

// Cache is safe for concurrent use. Concurrent lookups for the same id
// share one request.
type Cache struct {
	users UserFetcher
	conn  *sql.DB

	mu    sync.RWMutex
	names map[string]string
	group singleflight.Group
}

// New creates a cache. conn may be nil for a memory-only cache.
func New(users UserFetcher, conn *sql.DB) *Cache {
	return &Cache{users: users, conn: conn, names: make(map[string]string)}
}

// Lookup returns a name already known to the cache without any I/O beyond
// memory.
func (c *Cache) Lookup(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[userID]
	return name, ok
}

// Remember records a name learned elsewhere, such as from a message
// payload or the signed-in user.
func (c *Cache) Remember(author types.Author) error {
	name := strings.TrimSpace(author.DisplayName)
	if author.ID == "" || name == "" {
		return nil
	}
	c.mu.Lock()
	c.names[author.ID] = name
	c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return db.UpsertAuthor(c.conn, types.Author{ID: author.ID, DisplayName: name})
}

// Resolve returns the display name for userID, checking memory, then the
// database, then the server.
func (c *Cache) Resolve(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrUnknownAuthor
	}
	if name, ok := c.Lookup(userID); ok {
		return name, nil
	}
	v, err, _ := c.group.Do(userID, func() (any, error) {
		if name, ok := c.Lookup(userID); ok {
			return name, nil
		}
		if c.conn != nil {
			cached, err := db.GetAuthor(c.conn, userID)
			if err != nil {
				return "", err
			}
			if cached != nil && cached.DisplayName != "" {
				c.mu.Lock()
				c.names[userID] = cached.DisplayName
				c.mu.Unlock()
				return cached.DisplayName, nil
			}
		}
		if c.users == nil {
			return "", ErrUnknownAuthor
		}
		author, err := c.users.GetUser(ctx, userID)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(author.DisplayName) == "" {
			return "", ErrUnknownAuthor
		}
		author.ID = userID
		if err := c.Remember(author); err != nil {
			return "", err
		}
		return strings.TrimSpace(author.DisplayName), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Warm loads every persisted name into memory.
func (c *Cache) Warm() error {
	if c.conn == nil {
		return nil
	}
	all, err := db.GetAuthors(c.conn)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, author := range all {
		c.names[author.ID] = author.DisplayName
	}
	return nil
}
