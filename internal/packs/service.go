package packs

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

// Fallbacks seed the runtime before any pack is loaded. Nil fields fall
// back to the empty providers.
type Fallbacks struct {
	TV              provider.Schedule
	TVAccessibility provider.Schedule
	Radio           provider.Schedule
	Archive         provider.Archive
}

// Service owns the live provider roots. Each kind sits behind a reloadable
// shell, so handles held by callers survive pack installs and reloads.
type Service struct {
	store   *Store
	loader  *Loader
	updater *Updater
	logger  zerolog.Logger

	tv      *provider.ReloadableSchedule
	tvA11y  *provider.ReloadableSchedule
	radio   *provider.ReloadableSchedule
	archive *provider.ReloadableArchive
}

// NewService wires the loader and updater over one store. baseURL may be
// empty; see NewUpdater.
func NewService(store *Store, fetcher *fetch.Client, baseURL string, fb Fallbacks) *Service {
	if fb.TV == nil {
		fb.TV = provider.EmptySchedule{}
	}
	if fb.TVAccessibility == nil {
		fb.TVAccessibility = provider.EmptySchedule{}
	}
	if fb.Radio == nil {
		fb.Radio = provider.EmptySchedule{}
	}
	if fb.Archive == nil {
		fb.Archive = provider.EmptyArchive{}
	}

	return &Service{
		store:   store,
		loader:  NewLoader(store, fetcher),
		updater: NewUpdater(fetcher, store, baseURL),
		logger:  log.WithComponent("packs"),
		tv:      provider.NewReloadableSchedule(fb.TV),
		tvA11y:  provider.NewReloadableSchedule(fb.TVAccessibility),
		radio:   provider.NewReloadableSchedule(fb.Radio),
		archive: provider.NewReloadableArchive(fb.Archive),
	}
}

// Schedule returns the live schedule root for a schedule kind, nil for
// anything else. Callers hold the handle for the process lifetime and see
// delegate swaps transparently.
func (s *Service) Schedule(kind guide.Kind) *provider.ReloadableSchedule {
	switch kind {
	case guide.KindTV:
		return s.tv
	case guide.KindTVAccessibility:
		return s.tvA11y
	case guide.KindRadio:
		return s.radio
	}
	return nil
}

// Archive returns the live archive root.
func (s *Service) Archive() *provider.ReloadableArchive { return s.archive }

// Store exposes the underlying pack store for install listings.
func (s *Service) Store() *Store { return s.store }

// LoadInstalled loads the active pack of every kind and swaps the loaded
// composites in. Kinds without a loadable pack keep their current delegate,
// so a broken install never downgrades a working runtime.
func (s *Service) LoadInstalled(ctx context.Context) error {
	for _, kind := range guide.ScheduleKinds() {
		loaded, err := s.loader.LoadKind(ctx, kind)
		if err != nil {
			return err
		}
		if loaded == nil || len(loaded.Schedules) == 0 {
			continue
		}
		s.Schedule(kind).SetDelegate(provider.NewCompositeSchedule(loaded.Schedules...))
	}

	loaded, err := s.loader.LoadKind(ctx, guide.KindArchive)
	if err != nil {
		return err
	}
	if loaded != nil && len(loaded.Archives) > 0 {
		s.archive.SetDelegate(provider.NewCompositeArchive(loaded.Archives...))
	}
	return nil
}

// UpdateAndReload runs one update pass and reloads the runtime when
// anything was installed.
func (s *Service) UpdateAndReload(ctx context.Context, force bool) (Result, error) {
	result, err := s.updater.UpdateIfNeeded(ctx, force)
	if err != nil {
		return result, err
	}
	if len(result.Updated) > 0 {
		if err := s.LoadInstalled(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}
