// Package kvcache is the durable TTL key-value cache backing HTTP bodies,
// schedule payloads and other JSON blobs. Keys are plain strings; the
// "schedule:v1:" prefix is reserved for the schedule cache.
package kvcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/metrics"
	"github.com/michaldziwisz/programista-core/internal/persistence/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at);
`

// Store is a durable TTL cache over a single SQLite file. Safe for
// concurrent use; mutations serialize on the connection pool.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Options tweak store behaviour; the zero value is ready to use.
type Options struct {
	Now func() time.Time // test clock
}

// Open creates or opens the cache database and prunes expired rows.
func Open(path string, opts Options) (*Store, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("kvcache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kvcache: create schema: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{
		db:     db,
		logger: log.WithComponent("kvcache"),
		now:    now,
	}

	if n, err := s.PruneExpired(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("prune on open failed")
	} else if n > 0 {
		s.logger.Debug().Int64("rows", n).Str("event", "kvcache.pruned").Msg("expired entries removed")
	}
	return s, nil
}

// GetText returns the live value for key. Expired rows are removed
// opportunistically; storage errors degrade to a miss.
func (s *Store) GetText(ctx context.Context, key string) (string, bool) {
	var (
		value     string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		metrics.IncKVOp("get", "miss")
		return "", false
	case err != nil:
		s.logger.Debug().Err(err).Str("key", key).Msg("get failed")
		metrics.IncKVOp("get", "error")
		return "", false
	}

	if s.now().Unix() >= expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			s.logger.Debug().Err(err).Str("key", key).Msg("expired row delete failed")
		}
		metrics.IncKVOp("get", "miss")
		return "", false
	}
	metrics.IncKVOp("get", "ok")
	return value, true
}

// SetText stores value under key for ttl. Non-positive ttl removes the key.
func (s *Store) SetText(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO cache_entries (key, value, created_at, expires_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            value      = excluded.value,
            created_at = excluded.created_at,
            expires_at = excluded.expires_at`,
		key, value, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		metrics.IncKVOp("set", "error")
		return fmt.Errorf("kvcache: set %s: %w", key, err)
	}
	metrics.IncKVOp("set", "ok")
	return nil
}

// GetJSON decodes the live value for key into dst. Any decode failure is a
// miss.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := s.GetText(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("cached json invalid, treating as miss")
		return false
	}
	return true
}

// SetJSON stores v as JSON under key for ttl.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kvcache: encode %s: %w", key, err)
	}
	return s.SetText(ctx, key, string(raw), ttl)
}

// Delete removes key if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		metrics.IncKVOp("delete", "error")
		return fmt.Errorf("kvcache: delete %s: %w", key, err)
	}
	metrics.IncKVOp("delete", "ok")
	return nil
}

// PruneExpired removes every expired row and reports how many went away.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		metrics.IncKVOp("prune", "error")
		return 0, fmt.Errorf("kvcache: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("kvcache: prune rowcount: %w", err)
	}
	metrics.IncKVOp("prune", "ok")
	return n, nil
}

// Clear removes all rows but preserves the schema.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("kvcache: clear: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
