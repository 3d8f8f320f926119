// Package searchindex maintains the durable table of observed schedule items
// that backs offline title search. The browse path and the prefetch walk both
// feed it; reads are case-folded substring matches.
package searchindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/metrics"
	"github.com/michaldziwisz/programista-core/internal/persistence/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_items (
    kind        TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    source_name TEXT NOT NULL,
    day         TEXT NOT NULL,
    start       TEXT NOT NULL,
    title       TEXT NOT NULL,
    title_norm  TEXT NOT NULL,
    features    TEXT NOT NULL,
    indexed_at  INTEGER NOT NULL,
    PRIMARY KEY (kind, provider_id, source_id, day, start, title_norm)
);
CREATE INDEX IF NOT EXISTS idx_search_items_title_norm ON search_items (title_norm);
CREATE INDEX IF NOT EXISTS idx_search_items_kind_day ON search_items (kind, day);
`

// DefaultKeep is the retention window applied when Prune gets no explicit
// duration. Nothing depends on the exact value; it only bounds index growth.
const DefaultKeep = 90 * 24 * time.Hour

const defaultLimit = 200

// Index is the durable search table. Safe for concurrent use; mutations
// serialize on the connection pool.
type Index struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Options tweak index behaviour; the zero value is ready to use.
type Options struct {
	Now func() time.Time // test clock
}

// Open creates or opens the index database.
func Open(path string, opts Options) (*Index, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("searchindex: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("searchindex: create schema: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Index{
		db:     db,
		logger: log.WithComponent("searchindex"),
		now:    now,
	}, nil
}

// AddItems upserts the given items under kind. Items with an empty title are
// skipped, as are tv_accessibility items carrying no accessibility tags
// (those rows would be unfindable by the accessibility browse anyway).
func (ix *Index) AddItems(ctx context.Context, kind guide.Kind, items []guide.ScheduleItem) error {
	rows := make([]guide.ScheduleItem, 0, len(items))
	skipped := 0
	for _, it := range items {
		if !it.HasTitle() {
			skipped++
			continue
		}
		if kind == guide.KindTVAccessibility && len(guide.NormalizeAccessibility(it.Accessibility)) == 0 {
			skipped++
			continue
		}
		rows = append(rows, it)
	}
	if skipped > 0 {
		metrics.IncIndexItems("skipped", skipped)
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("searchindex: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO search_items
            (kind, provider_id, source_id, source_name, day, start, title, title_norm, features, indexed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (kind, provider_id, source_id, day, start, title_norm) DO UPDATE SET
            source_name = excluded.source_name,
            title       = excluded.title,
            features    = excluded.features,
            indexed_at  = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("searchindex: prepare: %w", err)
	}
	defer stmt.Close()

	indexedAt := ix.now().Unix()
	for _, it := range rows {
		title := strings.TrimSpace(it.Title)
		features := strings.Join(guide.NormalizeAccessibility(it.Accessibility), ",")
		if _, err := stmt.ExecContext(ctx,
			string(kind), it.ProviderID, it.Source.ID, it.Source.Name,
			it.Day.String(), it.Start, title, guide.Fold(title), features, indexedAt,
		); err != nil {
			metrics.IncIndexItems("error", 1)
			return fmt.Errorf("searchindex: upsert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("searchindex: commit: %w", err)
	}
	metrics.IncIndexItems("indexed", len(rows))
	return nil
}

// Search returns rows whose folded title contains the folded query as a
// substring, restricted to kinds (empty means all four), ordered by
// (day, start, source_name, title) and capped at limit.
func (ix *Index) Search(ctx context.Context, query string, kinds []guide.Kind, limit int) ([]guide.SearchResult, error) {
	folded := guide.Fold(strings.TrimSpace(query))
	if folded == "" {
		return nil, nil
	}
	if len(kinds) == 0 {
		kinds = guide.AllKinds()
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	metrics.IncIndexQuery()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := make([]any, 0, len(kinds)+2)
	args = append(args, "%"+escapeLike(folded)+"%")
	for _, k := range kinds {
		args = append(args, string(k))
	}
	args = append(args, limit)

	rows, err := ix.db.QueryContext(ctx, fmt.Sprintf(`
        SELECT kind, provider_id, source_id, source_name, day, start, title, features
        FROM search_items
        WHERE title_norm LIKE ? ESCAPE '\' AND kind IN (%s)
        ORDER BY day ASC, start ASC, source_name ASC, title ASC
        LIMIT ?`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("searchindex: query: %w", err)
	}
	defer rows.Close()

	var out []guide.SearchResult
	for rows.Next() {
		var (
			r           guide.SearchResult
			kindRaw     string
			dayRaw      string
			featuresRaw string
		)
		if err := rows.Scan(&kindRaw, &r.ProviderID, &r.SourceID, &r.SourceName,
			&dayRaw, &r.Start, &r.Title, &featuresRaw); err != nil {
			return nil, fmt.Errorf("searchindex: scan: %w", err)
		}
		r.Kind = guide.Kind(kindRaw)
		if day, err := guide.ParseDay(dayRaw); err == nil {
			r.Day = day
		}
		r.Accessibility = splitFeatures(featuresRaw)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searchindex: rows: %w", err)
	}
	return out, nil
}

// Prune deletes rows indexed before now-keep and reports how many were
// removed. Non-positive keep falls back to DefaultKeep.
func (ix *Index) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}
	cutoff := ix.now().Add(-keep).Unix()
	res, err := ix.db.ExecContext(ctx, `DELETE FROM search_items WHERE indexed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("searchindex: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("searchindex: prune rowcount: %w", err)
	}
	if n > 0 {
		ix.logger.Debug().Int64("rows", n).Str("event", "searchindex.pruned").Msg("old rows removed")
	}
	return n, nil
}

// Clear removes every row but preserves the schema.
func (ix *Index) Clear(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM search_items`); err != nil {
		return fmt.Errorf("searchindex: clear: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// escapeLike guards LIKE metacharacters with backslash, matching the
// ESCAPE '\' clause used in Search.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func splitFeatures(raw string) []string {
	if raw == "" {
		return nil
	}
	return guide.NormalizeAccessibility(strings.Split(raw, ","))
}
