package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/autobuild/internal/config"
)

var watchCmd = &cobra.Command{
	Use:     "watch [flags] SOURCEDIR OUTDIR [FILENAMES...] [-- BUILDER ARGS...]",
	Aliases: []string{"w"},
	Short:   "Rebuild on change without serving",
	Long: `Watch the source directory and rebuild whenever something changes,
without starting the HTTP server. Useful when another server already serves
the output directory.

Examples:
  autobuild watch docs docs/_build/html
  autobuild watch --poll --poll-interval 2s docs _build`,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	RunE:         runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	AddStandardFlags(watchCmd, "build", "watch")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watch(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func watch(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	a, err := newApp(cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	a.initialBuild(ctx)
	if ctx.Err() != nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if _, err := a.startWatching(gctx, g, nil); err != nil {
		return err
	}
	a.console.Message("Watching for changes (Ctrl+C to stop)")

	return g.Wait()
}
