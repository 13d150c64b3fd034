package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ConfigStore caches the active per-community configuration, one row per
// community. Values are opaque canonical-JSON blobs; the rules package
// owns their shape. Writes are serialized under a single lock so readers
// always observe either the old or the new document, never a partial one.
type ConfigStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewConfigStore creates a ConfigStore backed by db.
func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Get returns the cached config blob for a community, or ("", false) if
// none is cached.
func (s *ConfigStore) Get(ctx context.Context, community string) (string, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT config FROM configs WHERE subreddit = ?", community).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config for %s: %w", community, err)
	}
	return blob, true, nil
}

// Put upserts the config blob for a community atomically.
func (s *ConfigStore) Put(ctx context.Context, community, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO configs (subreddit, config) VALUES (?, ?)",
		community, blob)
	if err != nil {
		return fmt.Errorf("put config for %s: %w", community, err)
	}
	return nil
}

// Delete removes a community's cached config. Used when the bot is
// de-moderated from the community.
func (s *ConfigStore) Delete(ctx context.Context, community string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM configs WHERE subreddit = ?", community)
	if err != nil {
		return fmt.Errorf("delete config for %s: %w", community, err)
	}
	return nil
}

// Communities returns all community names with a cached config.
func (s *ConfigStore) Communities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT subreddit FROM configs")
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Empty reports whether no configs are cached yet. A true result on
// startup triggers a full ingest pass over all moderated communities.
func (s *ConfigStore) Empty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM configs").Scan(&count); err != nil {
		return false, fmt.Errorf("count configs: %w", err)
	}
	return count == 0, nil
}
