package packs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/michaldziwisz/programista-core/internal/fsutil"
	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

// StaticEngine serves providers defined entirely by a JSON data file in the
// pack directory. It is the built-in engine: packs that need no code of
// their own ship data plus a manifest entrypoint like "static:providers.json".
const StaticEngine = "static"

func init() {
	Register(StaticEngine, newStaticPack)
}

type staticFile struct {
	Providers []staticProvider `json:"providers"`
	Archives  []staticArchive  `json:"archives"`
}

type staticProvider struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Sources []staticSource `json:"sources"`
	Days    []guide.Day    `json:"days"`
	// Schedules is keyed by source id, then day.
	Schedules map[string]map[guide.Day][]staticItem `json:"schedules"`
	// Details maps a details_ref to its full text.
	Details map[string]string `json:"details"`
}

type staticArchive struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Years []int  `json:"years"`
	// Days is keyed by "YYYY-MM".
	Days    map[string][]guide.Day       `json:"days"`
	Sources map[guide.Day][]staticSource `json:"sources"`
	// Schedules is keyed by source id, then day.
	Schedules map[string]map[guide.Day][]staticItem `json:"schedules"`
	Details   map[string]string                     `json:"details"`
}

type staticSource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type staticItem struct {
	Start          string   `json:"start"`
	End            string   `json:"end"`
	Title          string   `json:"title"`
	Subtitle       string   `json:"subtitle"`
	DetailsRef     string   `json:"details_ref"`
	DetailsSummary string   `json:"details_summary"`
	Accessibility  []string `json:"accessibility"`
}

func newStaticPack(_ context.Context, constructor string, env Env) (Providers, error) {
	path, err := fsutil.ConfineRelPath(env.Dir, constructor)
	if err != nil {
		return Providers{}, fmt.Errorf("packs: static data file: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Providers{}, fmt.Errorf("packs: read static data: %w", err)
	}

	var file staticFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return Providers{}, fmt.Errorf("packs: decode static data: %w", err)
	}

	var out Providers
	for _, sp := range file.Providers {
		if sp.ID == "" {
			return Providers{}, fmt.Errorf("packs: static provider without id in %s", constructor)
		}
		out.Schedules = append(out.Schedules, newStaticSchedule(sp))
	}
	for _, sa := range file.Archives {
		if sa.ID == "" {
			return Providers{}, fmt.Errorf("packs: static archive without id in %s", constructor)
		}
		out.Archives = append(out.Archives, newStaticArchive(sa))
	}
	return out, nil
}

// staticSchedule answers every call from data loaded at pack time; force is
// meaningless and ignored.
type staticSchedule struct {
	id      string
	name    string
	sources []guide.Source
	days    []guide.Day
	items   map[string]map[guide.Day][]guide.ScheduleItem
	details map[string]string
}

func newStaticSchedule(sp staticProvider) *staticSchedule {
	p := &staticSchedule{
		id:      sp.ID,
		name:    sp.Name,
		days:    slices.Clone(sp.Days),
		items:   make(map[string]map[guide.Day][]guide.ScheduleItem),
		details: sp.Details,
	}
	names := make(map[string]string, len(sp.Sources))
	for _, src := range sp.Sources {
		names[src.ID] = src.Name
		p.sources = append(p.sources, guide.Source{ProviderID: sp.ID, ID: src.ID, Name: src.Name})
	}
	for sourceID, byDay := range sp.Schedules {
		src := guide.Source{ProviderID: sp.ID, ID: sourceID, Name: names[sourceID]}
		days := make(map[guide.Day][]guide.ScheduleItem, len(byDay))
		for day, rows := range byDay {
			days[day] = buildItems(src, day, rows)
		}
		p.items[sourceID] = days
	}
	return p
}

func buildItems(src guide.Source, day guide.Day, rows []staticItem) []guide.ScheduleItem {
	out := make([]guide.ScheduleItem, 0, len(rows))
	for _, row := range rows {
		item := guide.ScheduleItem{
			ProviderID:     src.ProviderID,
			Source:         src,
			Day:            day,
			Start:          row.Start,
			End:            row.End,
			Title:          row.Title,
			Subtitle:       row.Subtitle,
			DetailsRef:     row.DetailsRef,
			DetailsSummary: row.DetailsSummary,
			Accessibility:  guide.NormalizeAccessibility(row.Accessibility),
		}
		if !item.HasTitle() {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (p *staticSchedule) ID() string          { return p.id }
func (p *staticSchedule) DisplayName() string { return p.name }

func (p *staticSchedule) Sources(_ context.Context, _ bool) ([]guide.Source, error) {
	return slices.Clone(p.sources), nil
}

func (p *staticSchedule) Days(_ context.Context, _ bool) ([]guide.Day, error) {
	return slices.Clone(p.days), nil
}

func (p *staticSchedule) ScheduleOf(_ context.Context, src guide.Source, day guide.Day, _ bool) ([]guide.ScheduleItem, error) {
	return slices.Clone(p.items[src.ID][day]), nil
}

// ItemDetails resolves the details reference against the pack's details
// table and falls back to the inline summary.
func (p *staticSchedule) ItemDetails(_ context.Context, item guide.ScheduleItem, _ bool) (string, error) {
	if item.DetailsRef != "" {
		if text, ok := p.details[item.DetailsRef]; ok {
			return text, nil
		}
	}
	return item.DetailsSummary, nil
}

// staticArchiveProvider is the Archive counterpart of staticSchedule.
type staticArchiveProvider struct {
	id      string
	name    string
	years   []int
	days    map[string][]guide.Day
	sources map[guide.Day][]guide.Source
	items   map[string]map[guide.Day][]guide.ScheduleItem
	details map[string]string
}

func newStaticArchive(sa staticArchive) *staticArchiveProvider {
	p := &staticArchiveProvider{
		id:      sa.ID,
		name:    sa.Name,
		years:   slices.Clone(sa.Years),
		days:    sa.Days,
		sources: make(map[guide.Day][]guide.Source),
		items:   make(map[string]map[guide.Day][]guide.ScheduleItem),
		details: sa.Details,
	}
	names := make(map[string]string)
	for day, list := range sa.Sources {
		for _, src := range list {
			names[src.ID] = src.Name
			p.sources[day] = append(p.sources[day], guide.Source{ProviderID: sa.ID, ID: src.ID, Name: src.Name})
		}
	}
	for sourceID, byDay := range sa.Schedules {
		src := guide.Source{ProviderID: sa.ID, ID: sourceID, Name: names[sourceID]}
		days := make(map[guide.Day][]guide.ScheduleItem, len(byDay))
		for day, rows := range byDay {
			days[day] = buildItems(src, day, rows)
		}
		p.items[sourceID] = days
	}
	return p
}

func (p *staticArchiveProvider) ID() string          { return p.id }
func (p *staticArchiveProvider) DisplayName() string { return p.name }

func (p *staticArchiveProvider) Years(_ context.Context) ([]int, error) {
	return slices.Clone(p.years), nil
}

func (p *staticArchiveProvider) DaysInMonth(_ context.Context, year int, month time.Month, _ bool) ([]guide.Day, error) {
	key := fmt.Sprintf("%04d-%02d", year, int(month))
	return slices.Clone(p.days[key]), nil
}

func (p *staticArchiveProvider) SourcesForDay(_ context.Context, day guide.Day, _ bool) ([]guide.Source, error) {
	return slices.Clone(p.sources[day]), nil
}

func (p *staticArchiveProvider) ScheduleOf(_ context.Context, src guide.Source, day guide.Day, _ bool) ([]guide.ScheduleItem, error) {
	return slices.Clone(p.items[src.ID][day]), nil
}

var (
	_ provider.Schedule = (*staticSchedule)(nil)
	_ provider.Archive  = (*staticArchiveProvider)(nil)
)
