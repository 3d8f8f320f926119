package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/prefetch"
	"github.com/michaldziwisz/programista-core/internal/schedcache"
)

var syncNoUpdate bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Prefetch every schedule into the local cache and search index",
	Long: `sync loads the installed provider packs, checks the distribution index for
newer ones (skip with --no-update) and walks every provider and day: TV,
TV with accessibility aids, radio from today onward, then the archive.
Fetched items land in the durable cache and the search index. Progress
streams to the log; per-day failures are counted, never fatal.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncNoUpdate, "no-update", false, "skip the provider pack update check")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.WithComponent("sync")

	if err := a.packs.LoadInstalled(ctx); err != nil {
		// Only cancellation surfaces here; broken packs fall back silently.
		logger.Warn().Err(err).Str(log.FieldEvent, "sync.load_failed").Msg("pack load interrupted")
		return nil
	}

	if !syncNoUpdate {
		// Always check upstream so provider fixes land without user action.
		// A failed check leaves the installed packs in charge.
		result, err := a.packs.UpdateAndReload(ctx, true)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "sync.update_failed").Msg(result.Message)
		} else {
			logger.Info().Str(log.FieldEvent, "sync.packs").Msg(result.Message)
		}
	}

	tv := schedcache.NewCachedSchedule(a.packs.Schedule(guide.KindTV), a.kv, guide.KindTV, a.cfg.TTLTV)
	tvA11y := schedcache.NewCachedSchedule(a.packs.Schedule(guide.KindTVAccessibility), a.kv, guide.KindTVAccessibility, a.cfg.TTLTVAccessibility)
	radio := schedcache.NewCachedSchedule(a.packs.Schedule(guide.KindRadio), a.kv, guide.KindRadio, a.cfg.TTLRadio)
	archive := schedcache.NewCachedArchive(a.packs.Archive(), a.kv, a.cfg.TTLArchive)

	orch := prefetch.New(prefetch.Providers{
		TV:              tv,
		TVAccessibility: tvA11y,
		Radio:           radio,
		Archive:         archive,
	}, a.index)

	orch.Run(ctx, func(u prefetch.Update) {
		evt := logger.Info().
			Str(log.FieldKind, string(u.Stage)).
			Str(log.FieldEvent, "sync.progress")
		if u.HasTotal {
			evt = evt.Int("done", u.Done).Int("total", u.Total)
		} else if u.Done > 0 {
			evt = evt.Int("done", u.Done)
		}
		if u.Errors > 0 {
			evt = evt.Int("errors", u.Errors)
		}
		evt.Msg(u.Message)
	})
	return nil
}
