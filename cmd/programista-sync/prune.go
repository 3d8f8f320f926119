package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/michaldziwisz/programista-core/internal/persistence/sqlite"
)

var pruneVerify bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop expired cache rows and stale search index rows",
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneVerify, "verify", false, "run a structural check on both databases after pruning")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheRows, indexRows int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.kv.PruneExpired(ctx)
		if err != nil {
			return err
		}
		cacheRows = n
		return nil
	})
	g.Go(func() error {
		n, err := a.index.Prune(ctx, a.cfg.IndexKeep)
		if err != nil {
			return err
		}
		indexRows = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("cache: %d rows removed, index: %d rows removed\n", cacheRows, indexRows)

	if pruneVerify {
		return verifyDatabases(a)
	}
	return nil
}

// verifyDatabases runs PRAGMA quick_check on both database files and fails
// on the first corruption report.
func verifyDatabases(a *app) error {
	for _, name := range []string{cacheFile, indexFile} {
		path := filepath.Join(a.cfg.CacheDir, name)
		problems, err := sqlite.VerifyIntegrity(path, "quick")
		if err != nil {
			return fmt.Errorf("verify %s: %w", name, err)
		}
		if len(problems) > 0 {
			for _, p := range problems {
				a.logger.Error().Str("db", name).Msg(p)
			}
			return fmt.Errorf("%s failed the integrity check", name)
		}
		fmt.Printf("%s: ok\n", name)
	}
	return nil
}
