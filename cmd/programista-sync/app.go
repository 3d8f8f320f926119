package main

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/config"
	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/kvcache"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/packs"
	"github.com/michaldziwisz/programista-core/internal/searchindex"
	"github.com/michaldziwisz/programista-core/internal/settings"
)

// On-disk names under the data and cache directories.
const (
	cacheFile    = "cache.sqlite3"
	indexFile    = "search.sqlite3"
	settingsFile = "settings.json"
	packsDirName = "providers"
)

// app bundles the stores and clients the subcommands share: open once, run
// one command, close the databases.
type app struct {
	cfg      config.Config
	kv       *kvcache.Store
	index    *searchindex.Index
	fetcher  *fetch.Client
	settings *settings.Store
	packs    *packs.Service
	logger   zerolog.Logger
}

// openApp resolves the configuration and opens every shared store. The
// --data-dir/--cache-dir flags beat the environment.
func openApp() (*app, error) {
	if flagDataDir != "" {
		_ = os.Setenv("PROGRAMISTA_DATA_DIR", flagDataDir)
	}
	if flagCacheDir != "" {
		_ = os.Setenv("PROGRAMISTA_CACHE_DIR", flagCacheDir)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	if err := config.EnsureDir(cfg.CacheDir); err != nil {
		return nil, err
	}

	kv, err := kvcache.Open(filepath.Join(cfg.CacheDir, cacheFile), kvcache.Options{})
	if err != nil {
		return nil, err
	}
	index, err := searchindex.Open(filepath.Join(cfg.CacheDir, indexFile), searchindex.Options{})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	sets, err := settings.Open(filepath.Join(cfg.DataDir, settingsFile))
	if err != nil {
		_ = index.Close()
		_ = kv.Close()
		return nil, err
	}

	fetcher := fetch.New(fetch.Options{
		UserAgent:      cfg.UserAgent,
		AcceptLanguage: cfg.AcceptLanguage,
		Timeout:        cfg.HTTPTimeout,
		MinInterval:    cfg.MinRequestInterval,
		Cache:          kv,
	})

	return &app{
		cfg:      cfg,
		kv:       kv,
		index:    index,
		fetcher:  fetcher,
		settings: sets,
		packs: packs.NewService(
			packs.NewStore(filepath.Join(cfg.DataDir, packsDirName)),
			fetcher,
			cfg.PacksBaseURL,
			packs.Fallbacks{},
		),
		logger: log.WithComponent("cli"),
	}, nil
}

// close releases the databases. The JSON stores persist on every write and
// need no teardown.
func (a *app) close() {
	if err := a.index.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing search index")
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing schedule cache")
	}
}
