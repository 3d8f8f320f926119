package provider

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

// CompositeSchedule aggregates several Schedule providers behind one
// facade. Listings merge the children's results; per-source calls dispatch
// on the source's provider id, and an unknown id yields an empty result
// rather than an error. When two children claim the same id the later one
// wins.
type CompositeSchedule struct {
	providers []Schedule
	byID      map[string]Schedule
}

// NewCompositeSchedule wraps the given providers in listing order.
func NewCompositeSchedule(providers ...Schedule) *CompositeSchedule {
	c := &CompositeSchedule{
		providers: slices.Clone(providers),
		byID:      make(map[string]Schedule, len(providers)),
	}
	for _, p := range c.providers {
		c.byID[p.ID()] = p
	}
	return c
}

func (c *CompositeSchedule) ID() string          { return "composite" }
func (c *CompositeSchedule) DisplayName() string { return "Dostawcy" }

// Sources concatenates the children's sources, sorted by case-folded name.
// The sort is stable so providers listed earlier win ties.
func (c *CompositeSchedule) Sources(ctx context.Context, force bool) ([]guide.Source, error) {
	var out []guide.Source
	for _, p := range c.providers {
		srcs, err := p.Sources(ctx, force)
		if err != nil {
			return nil, err
		}
		out = append(out, srcs...)
	}
	slices.SortStableFunc(out, func(a, b guide.Source) int {
		return strings.Compare(guide.Fold(a.Name), guide.Fold(b.Name))
	})
	return out, nil
}

// Days returns the sorted union of the children's day sets.
func (c *CompositeSchedule) Days(ctx context.Context, force bool) ([]guide.Day, error) {
	lists := make([][]guide.Day, 0, len(c.providers))
	for _, p := range c.providers {
		days, err := p.Days(ctx, force)
		if err != nil {
			return nil, err
		}
		lists = append(lists, days)
	}
	return guide.MergeDays(lists...), nil
}

// DaysForProvider narrows Days to one child: the child's own day list, or
// empty when no child claims the id.
func (c *CompositeSchedule) DaysForProvider(ctx context.Context, providerID string, force bool) ([]guide.Day, error) {
	p, ok := c.byID[providerID]
	if !ok {
		return nil, nil
	}
	return p.Days(ctx, force)
}

func (c *CompositeSchedule) ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error) {
	p, ok := c.byID[src.ProviderID]
	if !ok {
		return nil, nil
	}
	return p.ScheduleOf(ctx, src, day, force)
}

func (c *CompositeSchedule) ItemDetails(ctx context.Context, item guide.ScheduleItem, force bool) (string, error) {
	p, ok := c.byID[item.ProviderID]
	if !ok {
		return "", nil
	}
	return p.ItemDetails(ctx, item, force)
}

// CompositeArchive aggregates Archive providers the way CompositeSchedule
// aggregates Schedule providers.
type CompositeArchive struct {
	providers []Archive
	byID      map[string]Archive
}

// NewCompositeArchive wraps the given archives in listing order.
func NewCompositeArchive(providers ...Archive) *CompositeArchive {
	c := &CompositeArchive{
		providers: slices.Clone(providers),
		byID:      make(map[string]Archive, len(providers)),
	}
	for _, p := range c.providers {
		c.byID[p.ID()] = p
	}
	return c
}

func (c *CompositeArchive) ID() string          { return "composite-archive" }
func (c *CompositeArchive) DisplayName() string { return "Programy archiwalne" }

// Years returns the sorted union of the children's year sets.
func (c *CompositeArchive) Years(ctx context.Context) ([]int, error) {
	seen := make(map[int]struct{})
	var out []int
	for _, p := range c.providers {
		years, err := p.Years(ctx)
		if err != nil {
			return nil, err
		}
		for _, y := range years {
			if _, ok := seen[y]; ok {
				continue
			}
			seen[y] = struct{}{}
			out = append(out, y)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (c *CompositeArchive) DaysInMonth(ctx context.Context, year int, month time.Month, force bool) ([]guide.Day, error) {
	lists := make([][]guide.Day, 0, len(c.providers))
	for _, p := range c.providers {
		days, err := p.DaysInMonth(ctx, year, month, force)
		if err != nil {
			return nil, err
		}
		lists = append(lists, days)
	}
	return guide.MergeDays(lists...), nil
}

func (c *CompositeArchive) SourcesForDay(ctx context.Context, day guide.Day, force bool) ([]guide.Source, error) {
	var out []guide.Source
	for _, p := range c.providers {
		srcs, err := p.SourcesForDay(ctx, day, force)
		if err != nil {
			return nil, err
		}
		out = append(out, srcs...)
	}
	slices.SortStableFunc(out, func(a, b guide.Source) int {
		return strings.Compare(guide.Fold(a.Name), guide.Fold(b.Name))
	})
	return out, nil
}

func (c *CompositeArchive) ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error) {
	p, ok := c.byID[src.ProviderID]
	if !ok {
		return nil, nil
	}
	return p.ScheduleOf(ctx, src, day, force)
}

var (
	_ Schedule  = (*CompositeSchedule)(nil)
	_ DayLister = (*CompositeSchedule)(nil)
	_ Archive   = (*CompositeArchive)(nil)
)
