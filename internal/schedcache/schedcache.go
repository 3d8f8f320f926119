// Package schedcache layers durable read-through caching over schedule and
// archive providers. Payloads are stored as a trimmed JSON projection keyed
// by (kind, provider, source, day); anything that fails to decode is treated
// as a miss and refetched.
package schedcache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

// KV is the slice of the cache store the wrappers need.
type KV interface {
	GetText(ctx context.Context, key string) (string, bool)
	SetText(ctx context.Context, key, value string, ttl time.Duration) error
}

func cacheKey(kind guide.Kind, src guide.Source, day guide.Day) string {
	return fmt.Sprintf("schedule:v1:%s:%s:%s:%s", kind, src.ProviderID, src.ID, day)
}

// itemCache is the shared read-through core of both wrappers. Concurrent
// loads of the same key collapse into one delegate call.
type itemCache struct {
	cache KV
	kind  guide.Kind
	ttl   time.Duration
	group singleflight.Group
}

type loadFunc func(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error)

func (ic *itemCache) scheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool, load loadFunc) ([]guide.ScheduleItem, error) {
	key := cacheKey(ic.kind, src, day)
	if !force {
		if raw, ok := ic.cache.GetText(ctx, key); ok {
			if items, ok := decodeItems(raw, src, day); ok {
				return items, nil
			}
		}
	}

	v, err, _ := ic.group.Do(key, func() (any, error) {
		items, err := load(ctx, src, day, force)
		if err != nil {
			return nil, err
		}
		if encoded, err := encodeItems(items); err == nil {
			// Write-through is best-effort; a failed store must not fail
			// the read.
			_ = ic.cache.SetText(ctx, key, encoded, ic.ttl)
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]guide.ScheduleItem), nil
}

// CachedSchedule decorates a Schedule with durable caching of ScheduleOf.
// Listings and details pass through to the delegate.
type CachedSchedule struct {
	delegate provider.Schedule
	items    itemCache
}

// NewCachedSchedule wraps delegate; kind scopes the cache keys and ttl
// bounds entry lifetime.
func NewCachedSchedule(delegate provider.Schedule, cache KV, kind guide.Kind, ttl time.Duration) *CachedSchedule {
	return &CachedSchedule{
		delegate: delegate,
		items:    itemCache{cache: cache, kind: kind, ttl: ttl},
	}
}

func (c *CachedSchedule) ID() string          { return c.delegate.ID() }
func (c *CachedSchedule) DisplayName() string { return c.delegate.DisplayName() }

func (c *CachedSchedule) Sources(ctx context.Context, force bool) ([]guide.Source, error) {
	return c.delegate.Sources(ctx, force)
}

func (c *CachedSchedule) Days(ctx context.Context, force bool) ([]guide.Day, error) {
	return c.delegate.Days(ctx, force)
}

// DaysForProvider forwards the capability when the delegate has it;
// otherwise the delegate's own days serve a matching id and anything else
// is empty.
func (c *CachedSchedule) DaysForProvider(ctx context.Context, providerID string, force bool) ([]guide.Day, error) {
	if lister, ok := c.delegate.(provider.DayLister); ok {
		return lister.DaysForProvider(ctx, providerID, force)
	}
	if providerID == c.delegate.ID() {
		return c.delegate.Days(ctx, force)
	}
	return nil, nil
}

func (c *CachedSchedule) ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error) {
	return c.items.scheduleOf(ctx, src, day, force, c.delegate.ScheduleOf)
}

func (c *CachedSchedule) ItemDetails(ctx context.Context, item guide.ScheduleItem, force bool) (string, error) {
	return c.delegate.ItemDetails(ctx, item, force)
}

// CachedArchive decorates an Archive the same way under the archive kind.
type CachedArchive struct {
	delegate provider.Archive
	items    itemCache
}

// NewCachedArchive wraps delegate with the given entry lifetime.
func NewCachedArchive(delegate provider.Archive, cache KV, ttl time.Duration) *CachedArchive {
	return &CachedArchive{
		delegate: delegate,
		items:    itemCache{cache: cache, kind: guide.KindArchive, ttl: ttl},
	}
}

func (c *CachedArchive) ID() string          { return c.delegate.ID() }
func (c *CachedArchive) DisplayName() string { return c.delegate.DisplayName() }

func (c *CachedArchive) Years(ctx context.Context) ([]int, error) {
	return c.delegate.Years(ctx)
}

func (c *CachedArchive) DaysInMonth(ctx context.Context, year int, month time.Month, force bool) ([]guide.Day, error) {
	return c.delegate.DaysInMonth(ctx, year, month, force)
}

func (c *CachedArchive) SourcesForDay(ctx context.Context, day guide.Day, force bool) ([]guide.Source, error) {
	return c.delegate.SourcesForDay(ctx, day, force)
}

func (c *CachedArchive) ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error) {
	return c.items.scheduleOf(ctx, src, day, force, c.delegate.ScheduleOf)
}

var (
	_ provider.Schedule  = (*CachedSchedule)(nil)
	_ provider.DayLister = (*CachedSchedule)(nil)
	_ provider.Archive   = (*CachedArchive)(nil)
)
