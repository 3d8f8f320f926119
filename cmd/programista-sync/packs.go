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
)

var packsUpdateForce bool

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "Manage installed provider packs",
}

var packsUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check the distribution index and install newer packs",
	RunE:  runPacksUpdate,
}

var packsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List active and installed pack versions per kind",
	RunE:  runPacksStatus,
}

func init() {
	packsUpdateCmd.Flags().BoolVar(&packsUpdateForce, "force", false, "bypass the cached distribution index")
	packsCmd.AddCommand(packsUpdateCmd)
	packsCmd.AddCommand(packsStatusCmd)
	rootCmd.AddCommand(packsCmd)
}

func runPacksUpdate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := a.packs.UpdateAndReload(ctx, packsUpdateForce)
	if result.Message != "" {
		fmt.Println(result.Message)
	}
	return err
}

func runPacksStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	store := a.packs.Store()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tACTIVE\tENGINE\tINSTALLED")
	for _, kind := range guide.AllKinds() {
		active, ok := store.ActiveVersion(kind)
		engine := ""
		if ok {
			if manifest, err := store.ReadManifest(kind, active); err == nil {
				if name, _, found := manifest.Engine(); found {
					engine = name
				}
			}
		} else {
			active = "-"
		}
		installed, err := store.InstalledVersions(kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, active, engine, strings.Join(installed, ", "))
	}
	return w.Flush()
}
