package prefetch

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

// SourceDay keys the accessibility feature map by source identity and day.
type SourceDay struct {
	ProviderID string
	SourceID   string
	Day        guide.Day
}

// Features is the warm-up outcome for one source and day. Known is false
// when the schedule could not be read; an empty tag list with Known set
// really means no accessibility aids that day.
type Features struct {
	Known bool
	Tags  []string
}

// WarmAccessibilityFeatures computes the accessibility tag union for every
// source and day combination. One schedule per provider and day is fetched
// first, at most four at a time, so the sequential sweep afterwards is
// served from the provider's cache.
func WarmAccessibilityFeatures(ctx context.Context, p provider.Schedule, sources []guide.Source, days []guide.Day) map[SourceDay]Features {
	var pids []string
	samples := make(map[string]guide.Source)
	for _, src := range sources {
		if _, ok := samples[src.ProviderID]; !ok {
			samples[src.ProviderID] = src
			pids = append(pids, src.ProviderID)
		}
	}

	lister, hasLister := p.(provider.DayLister)
	allowedSet := make(map[string]map[guide.Day]bool, len(pids))
	allowedSorted := make(map[string][]guide.Day, len(pids))
	for _, pid := range pids {
		if !hasLister {
			continue
		}
		listed, err := lister.DaysForProvider(ctx, pid, false)
		if err != nil {
			continue
		}
		set := make(map[guide.Day]bool, len(listed))
		for _, day := range listed {
			set[day] = true
		}
		sorted := slices.Clone(listed)
		slices.SortFunc(sorted, guide.Day.Compare)
		allowedSet[pid] = set
		allowedSorted[pid] = sorted
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pid := range pids {
		sample := samples[pid]
		warmDays := allowedSorted[pid]
		if len(warmDays) == 0 {
			warmDays = days
		}
		for _, day := range warmDays {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				_, _ = p.ScheduleOf(gctx, sample, day, false)
				return nil
			})
		}
	}
	_ = g.Wait()

	out := make(map[SourceDay]Features, len(sources)*len(days))
	for _, src := range sources {
		restricted := allowedSet[src.ProviderID]
		for _, day := range days {
			key := SourceDay{ProviderID: src.ProviderID, SourceID: src.ID, Day: day}
			if restricted != nil && !restricted[day] {
				out[key] = Features{Known: true}
				continue
			}
			items, err := p.ScheduleOf(ctx, src, day, false)
			if err != nil {
				out[key] = Features{}
				continue
			}
			out[key] = Features{Known: true, Tags: featureUnion(items)}
		}
	}
	return out
}

// featureUnion collects the distinct tags across items in the canonical
// AD, JM, N order.
func featureUnion(items []guide.ScheduleItem) []string {
	seen := make(map[string]bool)
	for _, item := range items {
		for _, tag := range item.Accessibility {
			seen[tag] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	var out []string
	for _, tag := range []string{guide.FeatureAudioDescription, guide.FeatureSignLanguage, guide.FeatureCaptions} {
		if seen[tag] {
			out = append(out, tag)
		}
	}
	return out
}
