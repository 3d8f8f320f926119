// Package search fuses the two search backends: the hosted hub when it is
// reachable and the local index filled during prefetch.
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/settings"
)

// Hub is the remote backend. *hub.Client satisfies it.
type Hub interface {
	Search(ctx context.Context, query string, kinds []guide.Kind, limit int, cursor int64) ([]guide.SearchResult, error)
}

// Index is the local backend. *searchindex.Index satisfies it.
type Index interface {
	Search(ctx context.Context, query string, kinds []guide.Kind, limit int) ([]guide.SearchResult, error)
}

// Filters yields the user's kind selection. *settings.Store satisfies it.
type Filters interface {
	SearchKindFilters() settings.SearchKindFilters
}

// Outcome is one search response plus where it came from. A non-nil Err
// alongside results records the hub failure that forced the local fallback;
// the results themselves are still good.
type Outcome struct {
	Results []guide.SearchResult
	Remote  bool
	Err     error
}

// Engine answers queries hub-first and falls back to the local index when
// the hub cannot. A nil hub makes every search local.
type Engine struct {
	hub      Hub
	index    Index
	settings Filters
	logger   zerolog.Logger
}

func New(hub Hub, index Index, filters Filters) *Engine {
	return &Engine{
		hub:      hub,
		index:    index,
		settings: filters,
		logger:   log.WithComponent("search"),
	}
}

// Search applies the stored kind filters and queries the hub, falling back
// to the local index on failure. The cursor only means something remotely;
// local pages always start from the top.
func (e *Engine) Search(ctx context.Context, query string, limit int, cursor int64) Outcome {
	if strings.TrimSpace(query) == "" {
		return Outcome{}
	}
	kinds := e.kinds()
	if e.hub == nil {
		return e.searchLocal(ctx, query, kinds, limit)
	}
	results, err := e.hub.Search(ctx, query, kinds, limit, cursor)
	if err == nil {
		return Outcome{Results: results, Remote: true}
	}
	if ctx.Err() != nil {
		return Outcome{Err: ctx.Err()}
	}
	e.logger.Warn().
		Err(err).
		Str(log.FieldEvent, "search.hub_failed").
		Msg("falling back to local index")
	out := e.searchLocal(ctx, query, kinds, limit)
	if out.Err != nil {
		out.Err = errors.Join(err, out.Err)
	} else {
		out.Err = err
	}
	return out
}

// SearchLocal skips the hub entirely; offline paths and the CLI's --local
// flag use it.
func (e *Engine) SearchLocal(ctx context.Context, query string, limit int) Outcome {
	if strings.TrimSpace(query) == "" {
		return Outcome{}
	}
	return e.searchLocal(ctx, query, e.kinds(), limit)
}

func (e *Engine) searchLocal(ctx context.Context, query string, kinds []guide.Kind, limit int) Outcome {
	results, err := e.index.Search(ctx, query, kinds, limit)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Results: results}
}

// kinds returns the enabled filter set; none selected means no restriction,
// which both backends expand to every kind.
func (e *Engine) kinds() []guide.Kind {
	return e.settings.SearchKindFilters().EnabledKinds()
}
