package packs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/provider"
)

// Env is what an engine factory receives to build a pack's providers.
type Env struct {
	Kind     guide.Kind
	Dir      string // installed pack version directory
	Manifest Manifest
	Fetcher  *fetch.Client
	Logger   zerolog.Logger
}

// Providers is the set of capability objects one pack contributes. Schedule
// kinds fill Schedules, the archive kind fills Archives.
type Providers struct {
	Schedules []provider.Schedule
	Archives  []provider.Archive
}

// Factory builds the providers of one pack. The constructor argument is the
// part of the manifest entrypoint after the engine name.
type Factory func(ctx context.Context, constructor string, env Env) (Providers, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs an engine factory under name. A later registration of
// the same name replaces the earlier one.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func factoryFor(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}
