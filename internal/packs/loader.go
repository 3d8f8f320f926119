package packs

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/metrics"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

// Loaded is the outcome of loading one kind's active pack.
type Loaded struct {
	Manifest  Manifest
	Schedules []provider.Schedule
	Archives  []provider.Archive
}

// Loader resolves the active pack of a kind into live providers.
type Loader struct {
	store   *Store
	fetcher *fetch.Client
	logger  zerolog.Logger
}

// NewLoader builds a Loader over the store; the fetcher is handed to every
// pack factory.
func NewLoader(store *Store, fetcher *fetch.Client) *Loader {
	return &Loader{store: store, fetcher: fetcher, logger: log.WithComponent("packs")}
}

// LoadKind loads the active pack for kind. A missing, invalid or broken
// pack is not an error: callers get (nil, nil) and keep whatever delegate
// they already have. Only context cancellation surfaces as an error.
func (l *Loader) LoadKind(ctx context.Context, kind guide.Kind) (*Loaded, error) {
	version, ok := l.store.ActiveVersion(kind)
	if !ok {
		metrics.IncPackLoad(string(kind), "none")
		return nil, nil
	}

	logger := l.logger.With().
		Str(log.FieldKind, string(kind)).
		Str(log.FieldVersion, version).
		Logger()

	manifest, err := l.store.ReadManifest(kind, version)
	if err != nil {
		logger.Warn().Err(err).
			Str(log.FieldEvent, "packs.manifest_unreadable").
			Msg("active pack has no readable manifest")
		metrics.IncPackLoad(string(kind), "error")
		return nil, nil
	}
	if err := manifest.Validate(kind); err != nil {
		logger.Warn().Err(err).
			Str(log.FieldEvent, "packs.manifest_invalid").
			Msg("active pack manifest rejected")
		metrics.IncPackLoad(string(kind), "error")
		return nil, nil
	}

	engine, constructor, _ := manifest.Engine()
	factory, ok := factoryFor(engine)
	if !ok {
		logger.Warn().
			Str(log.FieldEvent, "packs.engine_unknown").
			Str("engine", engine).
			Msg("no factory registered for pack engine")
		metrics.IncPackLoad(string(kind), "error")
		return nil, nil
	}

	env := Env{
		Kind:     kind,
		Dir:      l.store.PackDir(kind, version),
		Manifest: manifest,
		Fetcher:  l.fetcher,
		Logger:   logger,
	}
	built, err := factory(ctx, constructor, env)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn().Err(err).
			Str(log.FieldEvent, "packs.factory_failed").
			Str("engine", engine).
			Msg("pack factory failed")
		metrics.IncPackLoad(string(kind), "error")
		return nil, nil
	}
	if len(built.Schedules) == 0 && len(built.Archives) == 0 {
		logger.Warn().
			Str(log.FieldEvent, "packs.empty").
			Msg("pack built no providers")
		metrics.IncPackLoad(string(kind), "none")
		return nil, nil
	}

	metrics.IncPackLoad(string(kind), "loaded")
	logger.Info().
		Str(log.FieldEvent, "packs.loaded").
		Int("schedules", len(built.Schedules)).
		Int("archives", len(built.Archives)).
		Msg("provider pack loaded")
	return &Loaded{Manifest: manifest, Schedules: built.Schedules, Archives: built.Archives}, nil
}
