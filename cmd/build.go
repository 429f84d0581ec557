package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build [flags] SOURCEDIR OUTDIR [FILENAMES...] [-- BUILDER ARGS...]",
	Aliases: []string{"b"},
	Short:   "Run the pre-build commands and the compiler once",
	Long: `Run the pre-build commands and the documentation compiler once with the
same arguments a watched rebuild would use. The exit status is non-zero when
the build fails.

Examples:
  autobuild build docs docs/_build/html
  autobuild build --pre-build "make api-docs" -W docs _build`,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	RunE:         runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	AddStandardFlags(buildCmd, "build")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	return a.builder.Build(ctx, "")
}
