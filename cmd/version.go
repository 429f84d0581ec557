package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/autobuild/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the autobuild version",
	Long: `Print the autobuild version together with the commit, build time,
Go toolchain and platform it was built for.

Examples:
  autobuild version
  autobuild version --short
  autobuild version --format json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version and commit")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	info := version.GetBuildInfo()

	switch {
	case versionFormat == "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case versionFormat != "text":
		return fmt.Errorf("unsupported format %q (want text or json)", versionFormat)
	case versionShort:
		_, err := fmt.Fprintln(out, version.GetShortVersion())
		return err
	}

	writeVersionText(out, info)
	return nil
}

func writeVersionText(out io.Writer, info *version.BuildInfo) {
	head := "autobuild " + info.Version
	if c := info.ShortCommit(); c != "" {
		head += " (" + c + ")"
	}
	if info.Dirty {
		head += " (dirty)"
	}
	fmt.Fprintln(out, head)

	if !info.BuildTime.IsZero() {
		fmt.Fprintln(out, "Built:   ", info.BuildTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	fmt.Fprintln(out, "Go:      ", info.GoVersion)
	fmt.Fprintln(out, "Platform:", info.Platform)
}
