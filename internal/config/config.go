// Package config loads autobuild settings with viper from a config file,
// AUTOBUILD_ environment variables and command-line flags, applies defaults
// and validates the result.
//
// It also derives the entries that must always be ignored by the change
// filter: the output directory, the doctree directory and the warning file.
// Without them a rebuild would see its own output as a source change.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/autobuild/internal/errors"
)

// Defaults.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8000
	DefaultBrowserDelay = 5 * time.Second
	DefaultCommand      = "sphinx-build"
	DefaultDebounce     = 300 * time.Millisecond
	DefaultPollInterval = time.Second
	DefaultGlobCacheTTL = time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Build  BuildConfig  `mapstructure:"build" yaml:"build" json:"build"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch" json:"watch"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host" json:"host"`
	Port           int           `mapstructure:"port" yaml:"port" json:"port"`
	OpenBrowser    bool          `mapstructure:"open_browser" yaml:"open_browser" json:"open_browser"`
	Delay          time.Duration `mapstructure:"delay" yaml:"delay" json:"delay"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

type BuildConfig struct {
	Command     string   `mapstructure:"command" yaml:"command" json:"command"`
	SourceDir   string   `mapstructure:"source_dir" yaml:"source_dir" json:"source_dir"`
	OutDir      string   `mapstructure:"out_dir" yaml:"out_dir" json:"out_dir"`
	Filenames   []string `mapstructure:"filenames" yaml:"filenames" json:"filenames"`
	Args        []string `mapstructure:"args" yaml:"args" json:"args"`
	PreBuild    []string `mapstructure:"pre_build" yaml:"pre_build" json:"pre_build"`
	NoInitial   bool     `mapstructure:"no_initial" yaml:"no_initial" json:"no_initial"`
	DoctreeDir  string   `mapstructure:"doctree_dir" yaml:"doctree_dir" json:"doctree_dir"`
	WarningFile string   `mapstructure:"warning_file" yaml:"warning_file" json:"warning_file"`
}

type WatchConfig struct {
	Dirs         []string      `mapstructure:"dirs" yaml:"dirs" json:"dirs"`
	Ignore       []string      `mapstructure:"ignore" yaml:"ignore" json:"ignore"`
	ReIgnore     []string      `mapstructure:"re_ignore" yaml:"re_ignore" json:"re_ignore"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
	Poll         bool          `mapstructure:"poll" yaml:"poll" json:"poll"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	GlobCacheTTL time.Duration `mapstructure:"glob_cache_ttl" yaml:"glob_cache_ttl" json:"glob_cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers default values on v. Values already set by a file,
// the environment or a flag take precedence.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.open_browser", false)
	v.SetDefault("server.delay", DefaultBrowserDelay)
	v.SetDefault("build.command", DefaultCommand)
	v.SetDefault("build.no_initial", false)
	v.SetDefault("watch.debounce", DefaultDebounce)
	v.SetDefault("watch.poll", false)
	v.SetDefault("watch.poll_interval", DefaultPollInterval)
	v.SetDefault("watch.glob_cache_ttl", DefaultGlobCacheTTL)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, completes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "failed to decode configuration", err)
	}

	cfg.normalize()

	if result := ValidateConfigWithDetails(&cfg); result.HasErrors() {
		return nil, errors.NewConfigError(
			errors.ErrCodeConfigInvalid,
			"invalid configuration",
			result,
		)
	}

	return &cfg, nil
}

// normalize drops blank list entries, which flags and env vars produce
// easily ("--ignore=''" or a trailing comma).
func (c *Config) normalize() {
	c.Server.AllowedOrigins = compact(c.Server.AllowedOrigins)
	c.Build.Filenames = compact(c.Build.Filenames)
	c.Build.Args = compact(c.Build.Args)
	c.Build.PreBuild = compact(c.Build.PreBuild)
	c.Watch.Dirs = compact(c.Watch.Dirs)
	c.Watch.Ignore = compact(c.Watch.Ignore)
	c.Watch.ReIgnore = compact(c.Watch.ReIgnore)
	c.Build.Command = strings.TrimSpace(c.Build.Command)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// URL returns the address browsers should open.
func (c *Config) URL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(c.Server.Port)))
}

// WatchDirs returns the absolute directories to watch: the source directory
// followed by any extra directories, without duplicates.
func (c *Config) WatchDirs() []string {
	dirs := make([]string, 0, 1+len(c.Watch.Dirs))
	if c.Build.SourceDir != "" {
		dirs = append(dirs, absPath(c.Build.SourceDir))
	}
	for _, d := range c.Watch.Dirs {
		dirs = append(dirs, absPath(d))
	}
	return dedupe(dirs)
}

// IgnorePatterns returns the literal/glob entries for the change filter: the
// user's ignore patterns, then the output directory and, when configured,
// the doctree directory and the warning file.
//
// Literal user paths are resolved to real paths. Globs are passed through
// as written so that "**" keeps matching at any depth. The output locations
// are listed both as given (made absolute) and with symbolic links
// resolved, since change notifications may report either form.
func (c *Config) IgnorePatterns() []string {
	patterns := make([]string, 0, len(c.Watch.Ignore)+6)
	for _, p := range c.Watch.Ignore {
		if isGlob(p) {
			patterns = append(patterns, p)
			continue
		}
		patterns = append(patterns, realPath(p))
	}

	for _, p := range []string{c.Build.OutDir, c.Build.DoctreeDir, c.Build.WarningFile} {
		if p == "" {
			continue
		}
		patterns = append(patterns, absPath(p), realPath(p))
	}

	return dedupe(patterns)
}

// IgnoreRegexes returns the regular expressions for the change filter.
func (c *Config) IgnoreRegexes() []string {
	return dedupe(c.Watch.ReIgnore)
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// realPath resolves symbolic links where the path exists and falls back to
// the absolute path otherwise.
func realPath(p string) string {
	abs := absPath(p)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func compact(values []string) []string {
	if values == nil {
		return nil
	}
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
