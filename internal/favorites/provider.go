package favorites

import (
	"context"
	"strings"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

const (
	tvLabel    = "TV: "
	radioLabel = "Radio: "
)

// Provider presents the pinned stations as one virtual schedule provider.
// Listing needs no network; schedules and details are fetched by
// reconstructing the original source and dispatching to the live TV or
// radio provider.
type Provider struct {
	store *Store
	tv    provider.Schedule
	radio provider.Schedule
	today func() guide.Day
}

// NewProvider overlays store onto the live tv and radio providers.
func NewProvider(store *Store, tv, radio provider.Schedule) *Provider {
	return &Provider{store: store, tv: tv, radio: radio, today: guide.Today}
}

func (p *Provider) ID() string          { return ProviderID }
func (p *Provider) DisplayName() string { return "Ulubione" }

// Sources renders the pinned entries with a kind label; the virtual source
// id carries the encoded ref.
func (p *Provider) Sources(context.Context, bool) ([]guide.Source, error) {
	entries := p.store.Entries()
	sources := make([]guide.Source, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, entryToSource(e))
	}
	return sources, nil
}

// Days is the union of TV days and radio days from today on; with nothing
// pinned there is nothing to browse.
func (p *Provider) Days(ctx context.Context, force bool) ([]guide.Day, error) {
	if len(p.store.Entries()) == 0 {
		return nil, nil
	}
	tvDays, err := p.tv.Days(ctx, force)
	if err != nil {
		return nil, err
	}
	radioDays, err := p.radio.Days(ctx, force)
	if err != nil {
		return nil, err
	}
	today := p.today()
	var upcoming []guide.Day
	for _, d := range radioDays {
		if !d.Before(today) {
			upcoming = append(upcoming, d)
		}
	}
	return guide.MergeDays(tvDays, upcoming), nil
}

// ScheduleOf fetches the underlying schedule and re-stamps every item with
// the virtual identity, so selections made in the favorites list resolve
// back through this provider.
func (p *Provider) ScheduleOf(ctx context.Context, src guide.Source, day guide.Day, force bool) ([]guide.ScheduleItem, error) {
	ref, ok := DecodeSourceID(src.ID)
	if !ok {
		return nil, nil
	}
	delegate := p.delegateFor(ref.Kind)
	if delegate == nil {
		return nil, nil
	}

	items, err := delegate.ScheduleOf(ctx, p.originalSource(ref, stripLabel(src.Name)), day, force)
	if err != nil {
		return nil, err
	}
	wrapped := make([]guide.ScheduleItem, 0, len(items))
	for _, it := range items {
		it.ProviderID = ProviderID
		it.Source = src
		wrapped = append(wrapped, it)
	}
	return wrapped, nil
}

// ItemDetails undoes the re-stamping and asks the original provider.
func (p *Provider) ItemDetails(ctx context.Context, item guide.ScheduleItem, force bool) (string, error) {
	ref, ok := DecodeSourceID(item.Source.ID)
	if !ok {
		return "", nil
	}
	delegate := p.delegateFor(ref.Kind)
	if delegate == nil {
		return "", nil
	}

	original := item
	original.ProviderID = ref.ProviderID
	original.Source = p.originalSource(ref, stripLabel(item.Source.Name))
	return delegate.ItemDetails(ctx, original, force)
}

func (p *Provider) delegateFor(kind guide.Kind) provider.Schedule {
	switch kind {
	case guide.KindTV:
		return p.tv
	case guide.KindRadio:
		return p.radio
	}
	return nil
}

// originalSource rebuilds the underlying source, preferring the stored name
// over whatever label the virtual source carried.
func (p *Provider) originalSource(ref Ref, fallbackName string) guide.Source {
	name := fallbackName
	if entry, ok := p.store.Get(ref); ok {
		name = entry.Name
	}
	return guide.Source{ProviderID: ref.ProviderID, ID: ref.SourceID, Name: name}
}

func entryToSource(e Entry) guide.Source {
	label := tvLabel
	if e.Kind == guide.KindRadio {
		label = radioLabel
	}
	return guide.Source{
		ProviderID: ProviderID,
		ID:         EncodeSourceID(e.Ref),
		Name:       label + e.Name,
	}
}

func stripLabel(name string) string {
	if rest, ok := strings.CutPrefix(name, tvLabel); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(name, radioLabel); ok {
		return rest
	}
	return name
}

var _ provider.Schedule = (*Provider)(nil)
