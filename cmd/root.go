// Package cmd provides the autobuild command-line interface.
//
// Configuration is read from several sources; the first one that sets a
// value wins:
//
//  1. Command-line flags
//  2. Environment variables (AUTOBUILD_SERVER_PORT, AUTOBUILD_WATCH_IGNORE, ...)
//  3. The configuration file: --config, else AUTOBUILD_CONFIG_FILE, else
//     .autobuild.yml in the working directory
//  4. Built-in defaults
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/autobuild/internal/config"
	apperrors "github.com/conneroisu/autobuild/internal/errors"
	"github.com/conneroisu/autobuild/internal/logging"
)

const (
	envPrefix         = "AUTOBUILD"
	envConfigFile     = "AUTOBUILD_CONFIG_FILE"
	defaultConfigName = ".autobuild"
)

var cfgFile string

// rootCmd serves the documentation when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "autobuild [flags] SOURCEDIR OUTDIR [FILENAMES...] [-- BUILDER ARGS...]",
	Short: "Rebuild documentation on change and reload the browser",
	Long: `autobuild watches a documentation source tree, reruns the documentation
compiler (sphinx-build by default) when something changes and serves the
output directory with automatic browser reload.

Changes under the output directory, the doctree directory, the warning file
and any --ignore or --re-ignore match never trigger a rebuild.

Examples:
  autobuild docs docs/_build/html
  autobuild --port 0 --open-browser docs docs/_build/html
  autobuild --ignore "**/*.swp" --re-ignore "\.#.*" docs _build
  autobuild -b dirhtml -W docs _build -- --keep-going`,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	RunE:         runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to a process exit status. A
// failed build exits with the compiler's own status, configuration and
// usage problems with 2.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case apperrors.IsBuildError(err):
		var ae *apperrors.AutobuildError
		if errors.As(err, &ae) {
			if code, ok := ae.Context["exit_code"].(int); ok && code > 0 {
				return code
			}
		}
		return 1
	case apperrors.IsConfigError(err), apperrors.HasErrorType(err, apperrors.ErrorTypeValidation):
		return 2
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .autobuild.yml, can also use AUTOBUILD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")

	AddStandardFlags(rootCmd, "server", "build", "watch")
}

// initConfig creates the viper instance for one command invocation and
// reads the configuration file, if any. An explicitly named file must
// exist; the default one is optional.
func initConfig(stderr io.Writer) (*viper.Viper, error) {
	v := viper.New()

	explicit := true
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv(envConfigFile) != "":
		v.SetConfigFile(os.Getenv(envConfigFile))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(defaultConfigName)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid, "cannot read configuration file", err).
			WithPath(v.ConfigFileUsed())
	}

	fmt.Fprintln(stderr, "Using config file:", v.ConfigFileUsed())
	return v, nil
}

// loadConfig resolves the configuration for cmd: file, environment, then
// flags and positional arguments.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v, err := initConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	if err := applyFlags(v, cmd, args); err != nil {
		return nil, err
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		path := v.ConfigFileUsed()
		if path == "" {
			path = defaultConfigName + ".yml"
		}
		return nil, apperrors.NewEnhancedError(
			"Failed to load configuration",
			err,
			apperrors.ConfigurationError(err.Error(), path),
		)
	}
	return cfg, nil
}

// requireDirs checks the directories every build needs.
func requireDirs(cfg *config.Config) error {
	if cfg.Build.SourceDir == "" || cfg.Build.OutDir == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidPath,
			"SOURCEDIR and OUTDIR are required (as arguments or build.source_dir and build.out_dir)")
	}
	return nil
}

func newLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: out,
	}), nil
}
