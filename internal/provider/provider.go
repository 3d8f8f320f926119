// Package provider defines the contracts schedule and archive sources
// implement, plus the structural wrappers the pack runtime composes them
// with: a neutral empty provider, an aggregating composite and a
// swap-in-place reloadable shell.
package provider

import (
	"context"
	"time"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

// Schedule is a day-oriented guide source. The force flag asks the
// implementation to bypass any cache between it and the upstream service;
// plain reads may serve cached data.
//
// Implementations must be safe for concurrent use.
type Schedule interface {
	// ID is the stable provider identifier stamped on every source and item.
	ID() string
	// DisplayName is the human-facing provider name.
	DisplayName() string
	Sources(ctx context.Context, force bool) ([]guide.Source, error)
	Days(ctx context.Context, force bool) ([]guide.Day, error)
	ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error)
	ItemDetails(ctx context.Context, item guide.ScheduleItem, force bool) (string, error)
}

// DayLister is an optional Schedule capability: the day set of one
// aggregated provider, which may be narrower than the union reported by
// Days. Callers probe for it with a type assertion and fall back to Days.
type DayLister interface {
	DaysForProvider(ctx context.Context, providerID string, force bool) ([]guide.Day, error)
}

// Archive is a historical guide source browsed by year and month. Archives
// carry no per-item details.
type Archive interface {
	ID() string
	DisplayName() string
	Years(ctx context.Context) ([]int, error)
	DaysInMonth(ctx context.Context, year int, month time.Month, force bool) ([]guide.Day, error)
	SourcesForDay(ctx context.Context, day guide.Day, force bool) ([]guide.Source, error)
	ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error)
}
