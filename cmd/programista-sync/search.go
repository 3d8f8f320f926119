package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/hub"
	"github.com/michaldziwisz/programista-core/internal/search"
	"github.com/michaldziwisz/programista-core/internal/settings"
	"github.com/michaldziwisz/programista-core/internal/version"
)

var (
	searchKinds  []string
	searchLimit  int
	searchCursor int64
	searchLocal  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search fetched schedules, hub-first with a local fallback",
	Long: `search asks the hub for matching programmes and falls back to the local
index when the hub is unreachable. Rows print to stdout as tab-separated
lines: day, start, source, title, kind, accessibility aids.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchKinds, "kinds", nil, "restrict to kinds: tv, tv_accessibility, radio, archive (default: stored filters)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "maximum rows")
	searchCmd.Flags().Int64Var(&searchCursor, "cursor", 0, "resume after this item id (hub paging)")
	searchCmd.Flags().BoolVar(&searchLocal, "local", false, "skip the hub and search the local index only")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	flagFilters, err := parseKindFilters(searchKinds)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var filters search.Filters = a.settings
	if flagFilters != nil {
		filters = flagFilters
	}

	hubClient := hub.New(a.settings, hub.Options{
		BaseURL:    a.cfg.HubBaseURL,
		KeyHeader:  a.cfg.HubKeyHeader,
		AppVersion: version.Version,
		UserAgent:  fmt.Sprintf("programista/%s (+desktop)", version.Version),
	})
	engine := search.New(hubClient, a.index, filters)

	var out search.Outcome
	if searchLocal {
		out = engine.SearchLocal(ctx, args[0], searchLimit)
	} else {
		out = engine.Search(ctx, args[0], searchLimit, searchCursor)
	}
	if out.Err != nil && len(out.Results) == 0 {
		return out.Err
	}
	if out.Err != nil {
		a.logger.Warn().Err(out.Err).Msg("hub unavailable, served from the local index")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, r := range out.Results {
		fmt.Fprintln(w, formatRow(r))
	}
	return w.Flush()
}

// formatRow renders one result in the column order of the desktop search
// list: day, start, source, title, kind, accessibility aids.
func formatRow(r guide.SearchResult) string {
	return strings.Join([]string{
		r.Day.String(),
		r.Start,
		r.SourceName,
		r.Title,
		string(r.Kind),
		strings.Join(r.Accessibility, ", "),
	}, "\t")
}

// parseKindFilters maps --kinds values onto a filter set shaped like the
// stored one. An empty flag defers to the settings store.
func parseKindFilters(raw []string) (search.Filters, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var f settings.SearchKindFilters
	for _, s := range raw {
		kind, ok := guide.ParseKind(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("unknown kind %q (expected tv, tv_accessibility, radio or archive)", s)
		}
		switch kind {
		case guide.KindTV:
			f.TV = true
		case guide.KindTVAccessibility:
			f.TVAccessibility = true
		case guide.KindRadio:
			f.Radio = true
		case guide.KindArchive:
			f.Archive = true
		}
	}
	return staticFilters{filters: f}, nil
}

// staticFilters satisfies search.Filters with a fixed selection.
type staticFilters struct {
	filters settings.SearchKindFilters
}

func (s staticFilters) SearchKindFilters() settings.SearchKindFilters { return s.filters }
