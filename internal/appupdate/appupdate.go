// Package appupdate checks the GitHub releases feed for a newer application
// build and picks the right installer asset for the host architecture. All
// failures turn into a human-readable message; a broken update check must
// never take the application down with it.
package appupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/config"
	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/log"
)

const (
	releaseCacheKey = "app_update/github_latest_release_v1"
	releaseTimeout  = 10 * time.Second
)

// Result is the outcome of one update check. Message is always set and
// ready to show the user.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	AssetName       string
	DownloadURL     string
	Message         string
}

// Options tunes a Checker; zero values pick the configured defaults.
type Options struct {
	// ReleaseURL points at the GitHub latest-release endpoint.
	ReleaseURL string
	// Arch names the installer architecture family: arm64, x64 or unknown.
	Arch func() string
	// Packaged reports whether a store distribution manages updates itself.
	Packaged func() bool
}

// Checker performs update checks through the shared fetcher so responses
// land in the same durable cache as everything else.
type Checker struct {
	fetcher    *fetch.Client
	releaseURL string
	arch       func() string
	packaged   func() bool
	logger     zerolog.Logger
}

func New(fetcher *fetch.Client, opts Options) *Checker {
	releaseURL := opts.ReleaseURL
	if releaseURL == "" {
		releaseURL = config.DefaultReleaseURL
	}
	arch := opts.Arch
	if arch == nil {
		arch = hostArch
	}
	packaged := opts.Packaged
	if packaged == nil {
		packaged = func() bool { return false }
	}
	return &Checker{
		fetcher:    fetcher,
		releaseURL: releaseURL,
		arch:       arch,
		packaged:   packaged,
		logger:     log.WithComponent("appupdate"),
	}
}

type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string         `json:"tag_name"`
	HTMLURL string         `json:"html_url"`
	Assets  []releaseAsset `json:"assets"`
}

// Check compares current against the latest published release. force
// bypasses the cached release document; non-positive ttl selects the
// configured default.
func (c *Checker) Check(ctx context.Context, current string, force bool, ttl time.Duration) Result {
	out := Result{CurrentVersion: current}
	if c.packaged() {
		out.Message = "Ta wersja programu jest aktualizowana przez Microsoft Store."
		return out
	}
	if ttl <= 0 {
		ttl = config.DefaultUpdateCheckTTL
	}

	raw, err := c.fetcher.GetText(ctx, c.releaseURL, fetch.ReqOpt{
		CacheKey: releaseCacheKey,
		TTL:      ttl,
		Force:    force,
		Timeout:  releaseTimeout,
	})
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "appupdate.fetch_failed").
			Msg("release feed unavailable")
		out.Message = fmt.Sprintf("Nie udało się sprawdzić aktualizacji: %v", err)
		return out
	}
	var rel release
	if err := json.Unmarshal([]byte(raw), &rel); err != nil {
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "appupdate.decode_failed").
			Msg("release feed unreadable")
		out.Message = fmt.Sprintf("Nie udało się sprawdzić aktualizacji: %v", err)
		return out
	}

	latest := strings.TrimLeft(rel.TagName, "vV")
	if latest == "" {
		out.DownloadURL = rel.HTMLURL
		out.Message = "Nie udało się odczytać wersji z GitHuba."
		return out
	}
	out.LatestVersion = latest
	out.UpdateAvailable = CompareVersions(latest, current) > 0

	out.AssetName, out.DownloadURL = pickInstallerAsset(rel.Assets, c.arch())
	if out.DownloadURL == "" {
		out.DownloadURL = rel.HTMLURL
	}

	if out.UpdateAvailable {
		out.Message = fmt.Sprintf("Dostępna jest nowa wersja: %s (masz: %s).", latest, current)
		c.logger.Info().
			Str(log.FieldEvent, "appupdate.available").
			Str("latest", latest).
			Str("current", current).
			Msg("newer release published")
	} else {
		out.Message = fmt.Sprintf("Masz aktualną wersję (%s).", current)
	}
	return out
}

// VersionTuple parses the leading dotted-numeric part of a version string
// into four components. A single v/V prefix is ignored; missing groups are
// zero and an unparseable string is all zeros.
func VersionTuple(s string) [4]int {
	v := strings.TrimSpace(s)
	if len(v) > 0 && (v[0] == 'v' || v[0] == 'V') {
		v = v[1:]
	}
	var out [4]int
	rest := v
	for i := range out {
		digits := 0
		for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			break
		}
		n, err := strconv.Atoi(rest[:digits])
		if err != nil {
			break
		}
		out[i] = n
		rest = rest[digits:]
		if !strings.HasPrefix(rest, ".") {
			break
		}
		rest = rest[1:]
	}
	return out
}

// CompareVersions orders two version strings by their numeric tuples.
func CompareVersions(a, b string) int {
	ta, tb := VersionTuple(a), VersionTuple(b)
	return slices.Compare(ta[:], tb[:])
}

// pickInstallerAsset walks the preference list for arch and returns the
// first published asset, name and URL. arm64 hosts may fall back to the x64
// installer, which runs under emulation.
func pickInstallerAsset(assets []releaseAsset, arch string) (string, string) {
	var candidates []string
	if arch == "arm64" {
		candidates = []string{
			"programista-win-arm64.msi",
			"programista-win-arm64.exe",
			"programista-win-x64.msi",
			"programista.exe",
		}
	} else {
		candidates = []string{
			"programista-win-x64.msi",
			"programista-win-x64.exe",
			"programista.exe",
		}
	}
	byName := make(map[string]releaseAsset, len(assets))
	for _, a := range assets {
		byName[a.Name] = a
	}
	for _, name := range candidates {
		if a, ok := byName[name]; ok && a.BrowserDownloadURL != "" {
			return a.Name, a.BrowserDownloadURL
		}
	}
	return "", ""
}

// hostArch maps the Go architecture onto the release naming scheme.
func hostArch() string {
	switch runtime.GOARCH {
	case "arm64":
		return "arm64"
	case "amd64":
		return "x64"
	default:
		return "unknown"
	}
}
