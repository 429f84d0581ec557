package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/autobuild/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect autobuild configuration",
	Long: `Inspect the resolved autobuild configuration.

Examples:
  autobuild config show                       # Show resolved configuration
  autobuild config show --format json         # Show as JSON
  autobuild config show docs _build           # Include positional arguments
  autobuild config validate --config ci.yml   # Validate a specific file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [SOURCEDIR OUTDIR [FILENAMES...]]",
	Short: "Show the resolved configuration",
	Long: `Display the configuration after reading the configuration file,
applying environment overrides and flags, and filling in defaults. The
derived ignore entries are included.`,
	Args: cobra.ArbitraryArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [SOURCEDIR OUTDIR [FILENAMES...]]",
	Short: "Validate the configuration",
	Args:  cobra.ArbitraryArgs,
	RunE:  runConfigValidate,
}

var configShowFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&configShowFormat, "format", "f", "yaml", "Output format (yaml, json)")
	for _, c := range []*cobra.Command{configShowCmd, configValidateCmd} {
		AddStandardFlags(c, "server", "build", "watch")
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	out := struct {
		Config  *config.Config `yaml:"config" json:"config"`
		Derived struct {
			URL            string   `yaml:"url" json:"url"`
			WatchDirs      []string `yaml:"watch_dirs" json:"watch_dirs"`
			IgnorePatterns []string `yaml:"ignore_patterns" json:"ignore_patterns"`
			IgnoreRegexes  []string `yaml:"ignore_regexes" json:"ignore_regexes"`
		} `yaml:"derived" json:"derived"`
	}{Config: cfg}
	out.Derived.URL = cfg.URL()
	out.Derived.WatchDirs = cfg.WatchDirs()
	out.Derived.IgnorePatterns = cfg.IgnorePatterns()
	out.Derived.IgnoreRegexes = cfg.IgnoreRegexes()

	w := cmd.OutOrStdout()
	switch configShowFormat {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configShowFormat)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	result := config.ValidateConfigWithDetails(cfg)
	if result.HasWarnings() {
		fmt.Fprint(cmd.OutOrStdout(), result.String())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}
