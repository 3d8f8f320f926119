// Package config resolves the runtime configuration from the environment.
package config

import (
	"time"
)

// Defaults for the data plane. TTLs are policy, not component constants: the
// stores receive them from here.
const (
	DefaultUserAgent      = "programista/0.1 (+desktop)"
	DefaultAcceptLanguage = "pl,en;q=0.8"

	DefaultHubBaseURL   = "https://tyflo.eu.org/programista/api"
	DefaultHubKeyHeader = "X-Programista-Key"

	DefaultPacksBaseURL = "https://github.com/michaldziwisz/programista-providers/releases/latest/download/"
	DefaultReleaseURL   = "https://api.github.com/repos/michaldziwisz/programista/releases/latest"

	DefaultTTLTV              = 6 * time.Hour
	DefaultTTLTVAccessibility = 24 * time.Hour
	DefaultTTLRadio           = 24 * time.Hour
	DefaultTTLArchive         = 365 * 24 * time.Hour

	DefaultIndexKeep          = 90 * 24 * time.Hour
	DefaultHTTPTimeout        = 30 * time.Second
	DefaultMinRequestInterval = 500 * time.Millisecond
	DefaultUpdateCheckTTL     = 6 * time.Hour
)

// Config carries every tunable the data plane reads at startup.
type Config struct {
	DataDir  string
	CacheDir string

	UserAgent      string
	AcceptLanguage string

	HubBaseURL   string
	HubKeyHeader string

	PacksBaseURL string
	ReleaseURL   string

	TTLTV              time.Duration
	TTLTVAccessibility time.Duration
	TTLRadio           time.Duration
	TTLArchive         time.Duration

	IndexKeep          time.Duration
	HTTPTimeout        time.Duration
	MinRequestInterval time.Duration
	UpdateCheckTTL     time.Duration
}

// FromEnv builds a Config from environment variables, falling back to the
// documented defaults. Directory resolution errors are the only failures.
func FromEnv() (Config, error) {
	dataDir, err := DataDir()
	if err != nil {
		return Config{}, err
	}
	cacheDir, err := CacheDir()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir:  dataDir,
		CacheDir: cacheDir,

		UserAgent:      ParseString("PROGRAMISTA_USER_AGENT", DefaultUserAgent),
		AcceptLanguage: ParseString("PROGRAMISTA_ACCEPT_LANGUAGE", DefaultAcceptLanguage),

		HubBaseURL:   ParseString("PROGRAMISTA_HUB_BASE_URL", DefaultHubBaseURL),
		HubKeyHeader: ParseString("PROGRAMISTA_HUB_API_KEY_HEADER", DefaultHubKeyHeader),

		PacksBaseURL: ParseString("PROGRAMISTA_PACKS_BASE_URL", DefaultPacksBaseURL),
		ReleaseURL:   ParseString("PROGRAMISTA_RELEASE_URL", DefaultReleaseURL),

		TTLTV:              ParseDuration("PROGRAMISTA_TTL_TV", DefaultTTLTV),
		TTLTVAccessibility: ParseDuration("PROGRAMISTA_TTL_TV_ACCESSIBILITY", DefaultTTLTVAccessibility),
		TTLRadio:           ParseDuration("PROGRAMISTA_TTL_RADIO", DefaultTTLRadio),
		TTLArchive:         ParseDuration("PROGRAMISTA_TTL_ARCHIVE", DefaultTTLArchive),

		IndexKeep:          ParseDuration("PROGRAMISTA_INDEX_KEEP", DefaultIndexKeep),
		HTTPTimeout:        ParseDuration("PROGRAMISTA_HTTP_TIMEOUT", DefaultHTTPTimeout),
		MinRequestInterval: ParseDuration("PROGRAMISTA_MIN_REQUEST_INTERVAL", DefaultMinRequestInterval),
		UpdateCheckTTL:     ParseDuration("PROGRAMISTA_UPDATE_CHECK_TTL", DefaultUpdateCheckTTL),
	}
	return cfg, nil
}
