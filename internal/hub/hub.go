// Package hub is the client for the shared Programista hub, a hosted API
// that registers installations, answers cross-provider search queries and
// serves full description texts for remote results.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/config"
	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/metrics"
	"github.com/michaldziwisz/programista-core/internal/version"
)

const (
	registerTimeout = 10 * time.Second
	searchTimeout   = 15 * time.Second
	detailsTimeout  = 10 * time.Second

	// MaxSearchLimit is the largest page size the hub accepts per request.
	MaxSearchLimit = 200
)

// Errors surfaced to the user as-is.
var (
	// ErrNoAPIKey means the hub refused or could not issue an API key.
	ErrNoAPIKey = errors.New("Brak klucza API.")

	// ErrInvalidResponse means the hub answered with a body that does not
	// match the documented shape.
	ErrInvalidResponse = errors.New("Nieprawidłowa odpowiedź serwera.")
)

// KeyStore persists the hub credential between runs. *settings.Store
// satisfies it.
type KeyStore interface {
	HubAPIKey() string
	SetHubAPIKey(key string) error
	ClearHubAPIKey() error
	HubInstallID() (string, error)
}

// Options configures a Client. Zero fields fall back to the configured
// defaults.
type Options struct {
	// BaseURL is the hub API root without a trailing slash.
	BaseURL string
	// KeyHeader carries the API key on authenticated requests. The hub may
	// announce a different header name during registration; that name wins
	// for the lifetime of the process.
	KeyHeader  string
	AppVersion string
	UserAgent  string
	// Platform describes the host inside the registration payload.
	Platform   string
	HTTPClient *http.Client
}

// Client talks to the hub. It registers the installation on first use and
// transparently re-registers once when the hub rejects a stored key.
type Client struct {
	baseURL    string
	keyHeader  string
	appVersion string
	userAgent  string
	platform   string
	http       *http.Client
	settings   KeyStore
	logger     zerolog.Logger

	mu sync.Mutex
	// activeHeader is the header name announced at registration; empty
	// means the configured keyHeader applies.
	activeHeader string
}

// New builds a hub client backed by settings for credential storage.
func New(settings KeyStore, opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(config.DefaultHubBaseURL, "/")
	}
	keyHeader := strings.TrimSpace(opts.KeyHeader)
	if keyHeader == "" {
		keyHeader = config.DefaultHubKeyHeader
	}
	appVersion := opts.AppVersion
	if appVersion == "" {
		appVersion = version.Version
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	platform := opts.Platform
	if platform == "" {
		platform = fmt.Sprintf("%s (%s)", runtime.GOOS, runtime.GOARCH)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		keyHeader:  keyHeader,
		appVersion: appVersion,
		userAgent:  userAgent,
		platform:   platform,
		http:       httpClient,
		settings:   settings,
		logger:     log.WithComponent("hub"),
	}
}

// EnsureAPIKey returns the stored API key, registering this installation
// with the hub to obtain one when none is stored yet.
func (c *Client) EnsureAPIKey(ctx context.Context) (string, error) {
	if key := c.settings.HubAPIKey(); key != "" {
		return key, nil
	}
	installID, err := c.settings.HubInstallID()
	if err != nil {
		return "", fmt.Errorf("hub: install id: %w", err)
	}
	reg, err := c.register(ctx, installID)
	if err != nil {
		return "", err
	}
	if err := c.settings.SetHubAPIKey(reg.APIKey); err != nil {
		return "", fmt.Errorf("hub: persist api key: %w", err)
	}
	return reg.APIKey, nil
}

// Search runs a remote query and returns normalized rows sorted by day,
// start time and case-folded source and title. Empty kinds means every
// kind; limit is clamped to 1..MaxSearchLimit and cursor, when positive,
// resumes a previous page. A blank query or a kind filter that normalizes
// to nothing returns empty without touching the network.
func (c *Client) Search(ctx context.Context, query string, kinds []guide.Kind, limit int, cursor int64) ([]guide.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	names, ok := kindNames(kinds)
	if !ok {
		return nil, nil
	}

	key, err := c.EnsureAPIKey(ctx)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "hub.key_unavailable").
			Msg("search without api key")
		return nil, ErrNoAPIKey
	}

	payload := searchRequest{
		Query: query,
		Kinds: names,
		Limit: clampLimit(limit),
	}
	if cursor > 0 {
		payload.Cursor = &cursor
	}

	body, status, err := c.doAuthed(ctx, "search", "/search", payload, key, searchTimeout)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		metrics.IncHubRequest("search", "error")
		return nil, fmt.Errorf("hub: search: unexpected status %d", status)
	}
	metrics.IncHubRequest("search", "ok")

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, ErrInvalidResponse
	}
	out := make([]guide.SearchResult, 0, len(rows))
	for _, raw := range rows {
		if row, ok := parseSearchRow(raw); ok {
			out = append(out, row)
		}
	}
	sortResults(out)
	return out, nil
}

// DetailsText fetches the full description for a remote result. Absent
// descriptions, unknown refs and a missing API key all come back as the
// empty string with a nil error.
func (c *Client) DetailsText(ctx context.Context, providerID, detailsRef string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	detailsRef = strings.TrimSpace(detailsRef)
	if providerID == "" || detailsRef == "" {
		return "", nil
	}
	key, err := c.EnsureAPIKey(ctx)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str(log.FieldEvent, "hub.key_unavailable").
			Msg("details without api key")
		return "", nil
	}

	payload := detailsRequest{ProviderID: providerID, DetailsRef: detailsRef}
	body, status, err := c.doAuthed(ctx, "details", "/details", payload, key, detailsTimeout)
	if err != nil {
		if errors.Is(err, ErrNoAPIKey) {
			return "", nil
		}
		return "", err
	}
	if status == http.StatusNotFound {
		metrics.IncHubRequest("details", "ok")
		return "", nil
	}
	if status < 200 || status > 299 {
		metrics.IncHubRequest("details", "error")
		return "", fmt.Errorf("hub: details: unexpected status %d", status)
	}
	metrics.IncHubRequest("details", "ok")

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Text), nil
}

type registration struct {
	APIKey string `json:"api_key"`
	Header string `json:"header"`
}

func (c *Client) register(ctx context.Context, installID string) (registration, error) {
	payload := map[string]string{
		"install_id":  installID,
		"app_version": c.appVersion,
		"platform":    c.platform,
	}
	body, status, err := c.postJSON(ctx, "/register", payload, "", registerTimeout)
	if err != nil {
		metrics.IncHubRequest("register", "error")
		return registration{}, fmt.Errorf("hub: register: %w", err)
	}
	if status < 200 || status > 299 {
		metrics.IncHubRequest("register", "error")
		return registration{}, fmt.Errorf("hub: register: unexpected status %d", status)
	}
	var reg registration
	if err := json.Unmarshal(body, &reg); err != nil {
		metrics.IncHubRequest("register", "error")
		return registration{}, fmt.Errorf("hub: register: %w", ErrInvalidResponse)
	}
	reg.APIKey = strings.TrimSpace(reg.APIKey)
	if reg.APIKey == "" {
		metrics.IncHubRequest("register", "error")
		return registration{}, fmt.Errorf("hub: register: %w", ErrInvalidResponse)
	}
	if h := strings.TrimSpace(reg.Header); h != "" {
		reg.Header = h
		c.setActiveHeader(h)
	} else {
		reg.Header = c.keyHeader
	}
	metrics.IncHubRequest("register", "ok")
	c.logger.Info().
		Str(log.FieldEvent, "hub.registered").
		Str("key_header", reg.Header).
		Msg("hub issued api key")
	return reg, nil
}

// reissueKey discards the stored key and registers again. The hub rotates
// keys server-side, so a rejected key is gone for good.
func (c *Client) reissueKey(ctx context.Context) (string, error) {
	if err := c.settings.ClearHubAPIKey(); err != nil {
		return "", fmt.Errorf("hub: clear api key: %w", err)
	}
	return c.EnsureAPIKey(ctx)
}

// doAuthed posts payload with the API key attached and replays the request
// once with a fresh key when the hub answers 401. A failed reissue returns
// ErrNoAPIKey.
func (c *Client) doAuthed(ctx context.Context, endpoint, path string, payload any, key string, timeout time.Duration) ([]byte, int, error) {
	body, status, err := c.postJSON(ctx, path, payload, key, timeout)
	if err != nil {
		metrics.IncHubRequest(endpoint, "error")
		return nil, 0, err
	}
	if status != http.StatusUnauthorized {
		return body, status, nil
	}
	metrics.IncHubRequest(endpoint, "auth_retry")
	c.logger.Warn().
		Str(log.FieldEvent, "hub.key_rejected").
		Str("endpoint", endpoint).
		Msg("hub rejected api key, registering again")
	fresh, err := c.reissueKey(ctx)
	if err != nil {
		metrics.IncHubRequest(endpoint, "error")
		return nil, 0, fmt.Errorf("%w: %v", ErrNoAPIKey, err)
	}
	body, status, err = c.postJSON(ctx, path, payload, fresh, timeout)
	if err != nil {
		metrics.IncHubRequest(endpoint, "error")
		return nil, 0, err
	}
	return body, status, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, apiKey string, timeout time.Duration) ([]byte, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("hub: encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("hub: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if apiKey != "" {
		req.Header.Set(c.header(), apiKey)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("hub: POST %s: %w", path, err)
	}
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("hub: read response: %w", err)
	}
	return body, res.StatusCode, nil
}

func (c *Client) header() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeHeader != "" {
		return c.activeHeader
	}
	return c.keyHeader
}

func (c *Client) setActiveHeader(name string) {
	c.mu.Lock()
	c.activeHeader = name
	c.mu.Unlock()
}

type searchRequest struct {
	Query  string   `json:"query"`
	Kinds  []string `json:"kinds"`
	Limit  int      `json:"limit"`
	Cursor *int64   `json:"cursor,omitempty"`
}

type detailsRequest struct {
	ProviderID string `json:"provider_id"`
	DetailsRef string `json:"details_ref"`
}

type searchRow struct {
	Kind           string          `json:"kind"`
	ProviderID     string          `json:"provider_id"`
	SourceID       string          `json:"source_id"`
	SourceName     string          `json:"source_name"`
	Day            string          `json:"day"`
	StartTime      string          `json:"start_time"`
	Title          string          `json:"title"`
	Subtitle       string          `json:"subtitle"`
	DetailsRef     string          `json:"details_ref"`
	DetailsSummary string          `json:"details_summary"`
	Accessibility  []string        `json:"accessibility"`
	ItemID         json.RawMessage `json:"item_id"`
}

// parseSearchRow validates one hub row. Rows missing identity fields, with
// unknown kinds or unparseable days are dropped rather than failing the
// whole page.
func parseSearchRow(raw json.RawMessage) (guide.SearchResult, bool) {
	var row searchRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return guide.SearchResult{}, false
	}
	kind, ok := guide.ParseKind(strings.TrimSpace(row.Kind))
	if !ok {
		return guide.SearchResult{}, false
	}
	providerID := strings.TrimSpace(row.ProviderID)
	sourceID := strings.TrimSpace(row.SourceID)
	sourceName := strings.TrimSpace(row.SourceName)
	title := strings.TrimSpace(row.Title)
	if providerID == "" || sourceID == "" || sourceName == "" || title == "" {
		return guide.SearchResult{}, false
	}
	day, err := guide.ParseDay(strings.TrimSpace(row.Day))
	if err != nil {
		return guide.SearchResult{}, false
	}
	start := strings.TrimSpace(row.StartTime)
	// The hub reports ISO clock times; displays use HH:MM.
	if len(start) >= 5 {
		start = start[:5]
	}
	return guide.SearchResult{
		Kind:           kind,
		ProviderID:     providerID,
		SourceID:       sourceID,
		SourceName:     sourceName,
		Day:            day,
		Start:          start,
		Title:          title,
		Subtitle:       strings.TrimSpace(row.Subtitle),
		DetailsRef:     strings.TrimSpace(row.DetailsRef),
		DetailsSummary: strings.TrimSpace(row.DetailsSummary),
		Accessibility:  accessibilityTags(row.Accessibility),
		ItemID:         parseItemID(row.ItemID),
	}, true
}

func accessibilityTags(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	trimmed := make([]string, 0, len(raw))
	for _, tag := range raw {
		if tag = strings.TrimSpace(tag); tag != "" {
			trimmed = append(trimmed, tag)
		}
	}
	return guide.NormalizeAccessibility(trimmed)
}

// parseItemID tolerates both numeric and string-encoded ids; anything else
// leaves the zero value.
func parseItemID(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// kindNames expands an empty filter to every kind and returns the wire
// names sorted, the order the hub expects. Unknown kinds are dropped; a
// filter that asked only for unknown kinds yields ok=false, meaning there is
// nothing to request.
func kindNames(kinds []guide.Kind) ([]string, bool) {
	if len(kinds) == 0 {
		kinds = guide.AllKinds()
	}
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if !k.Valid() {
			continue
		}
		names = append(names, string(k))
	}
	if len(names) == 0 {
		return nil, false
	}
	slices.Sort(names)
	return slices.Compact(names), true
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func sortResults(rows []guide.SearchResult) {
	slices.SortStableFunc(rows, func(a, b guide.SearchResult) int {
		if c := a.Day.Compare(b.Day); c != 0 {
			return c
		}
		if c := strings.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		if c := strings.Compare(guide.Fold(a.SourceName), guide.Fold(b.SourceName)); c != 0 {
			return c
		}
		return strings.Compare(guide.Fold(a.Title), guide.Fold(b.Title))
	})
}
