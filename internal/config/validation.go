package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/conneroisu/autobuild/internal/logging"
)

var hostLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidationError is one problem found in a Config, with hints for fixing it.
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult collects the errors and warnings for one Config.
// Warnings never make a Config invalid.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

func (vr *ValidationResult) HasErrors() bool   { return len(vr.Errors) > 0 }
func (vr *ValidationResult) HasWarnings() bool { return len(vr.Warnings) > 0 }

// Error lets a result with errors be returned as the cause of a ConfigError.
func (vr *ValidationResult) Error() string {
	parts := make([]string, len(vr.Errors))
	for i, e := range vr.Errors {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// String renders every issue with its suggestions, errors first.
func (vr *ValidationResult) String() string {
	var b strings.Builder
	for _, section := range []struct {
		heading string
		issues  []ValidationError
	}{
		{"Validation errors:", vr.Errors},
		{"Validation warnings:", vr.Warnings},
	} {
		if len(section.issues) == 0 {
			continue
		}
		b.WriteString(section.heading + "\n")
		for _, issue := range section.issues {
			fmt.Fprintf(&b, "  • %s: %s\n", issue.Field, issue.Message)
			for _, s := range issue.Suggestions {
				fmt.Fprintf(&b, "    - %s\n", s)
			}
		}
	}
	return b.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, msg string, hints ...string) {
	vr.Errors = append(vr.Errors, ValidationError{field, value, msg, hints})
}

func (vr *ValidationResult) warn(field string, value interface{}, msg string, hints ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{field, value, msg, hints})
}

var checks = []func(*Config, *ValidationResult){
	checkServer,
	checkBuild,
	checkWatch,
	checkLog,
}

// ValidateConfigWithDetails runs every check against config and reports
// all problems rather than stopping at the first.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}
	for _, check := range checks {
		check(config, result)
	}
	result.Valid = !result.HasErrors()
	return result
}

func checkServer(c *Config, r *ValidationResult) {
	s := c.Server

	switch {
	case s.Port < 0 || s.Port > 65535:
		r.fail("server.port", s.Port, fmt.Sprintf("port %d is outside 0-65535", s.Port),
			"Pick a port between 1024 and 65535",
			"Port 0 picks a free port")
	case s.Port > 0 && s.Port < 1024:
		r.warn("server.port", s.Port, "port below 1024 requires elevated privileges",
			"Use a port above 1024 while writing docs")
	}

	if s.Host == "" {
		r.fail("server.host", s.Host, "host cannot be empty", "Use '127.0.0.1' to serve locally")
	} else if err := checkHost(s.Host); err != nil {
		r.fail("server.host", s.Host, err.Error(),
			"Use '127.0.0.1' to serve locally",
			"Use '0.0.0.0' to serve on every interface")
	}

	if s.Delay < 0 {
		r.fail("server.delay", s.Delay, "browser delay cannot be negative")
	}
}

func checkBuild(c *Config, r *ValidationResult) {
	b := c.Build

	if b.Command == "" {
		r.fail("build.command", b.Command, "build command cannot be empty",
			"Use 'sphinx-build' for Sphinx projects",
			"Use 'python -m sphinx' when sphinx-build is not on PATH")
	}

	if b.SourceDir != "" {
		if info, err := os.Stat(b.SourceDir); err != nil {
			r.fail("build.source_dir", b.SourceDir,
				fmt.Sprintf("source directory is not accessible: %v", err),
				"Check the path exists and is readable")
		} else if !info.IsDir() {
			r.fail("build.source_dir", b.SourceDir, "source path is not a directory")
		}

		if b.OutDir != "" && samePath(b.SourceDir, b.OutDir) {
			r.fail("build.out_dir", b.OutDir, "output directory must differ from the source directory",
				"Use a subdirectory such as '_build/html'")
		}
	}

	for _, cmd := range b.PreBuild {
		if strings.TrimSpace(cmd) == "" {
			r.fail("build.pre_build", cmd, "pre-build command cannot be empty")
		}
	}
}

func checkWatch(c *Config, r *ValidationResult) {
	w := c.Watch

	if w.Debounce < 0 {
		r.fail("watch.debounce", w.Debounce, "debounce cannot be negative")
	}
	if w.Poll && w.PollInterval <= 0 {
		r.fail("watch.poll_interval", w.PollInterval, "poll interval must be positive when polling is enabled",
			"Use '1s' for typical documentation trees")
	}
	if w.GlobCacheTTL < 0 {
		r.fail("watch.glob_cache_ttl", w.GlobCacheTTL, "glob cache TTL cannot be negative",
			"Use 0 to disable the cache")
	}

	for _, src := range w.ReIgnore {
		if _, err := regexp2.Compile(src, regexp2.None); err != nil {
			r.fail("watch.re_ignore", src, fmt.Sprintf("invalid regular expression: %v", err),
				`Escape literal dots, for example '\.swp$'`)
		}
	}

	for _, dir := range w.Dirs {
		if _, err := os.Stat(dir); err != nil {
			r.warn("watch.dirs", dir, "watched directory does not exist yet")
		}
	}
}

func checkLog(c *Config, r *ValidationResult) {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		r.fail("log.level", c.Log.Level, err.Error(), "Use one of debug, info, warn, error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		r.fail("log.format", c.Log.Format, "unknown log format", "Use 'text' or 'json'")
	}
}

// checkHost accepts IP literals and RFC 1123 host names.
func checkHost(host string) error {
	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}
	if i := strings.IndexAny(host, ";&|$`()<>\"'\\ "); i >= 0 {
		return fmt.Errorf("host contains forbidden character %q", host[i])
	}
	for _, label := range strings.Split(host, ".") {
		if !hostLabel.MatchString(label) {
			return fmt.Errorf("invalid hostname %q", host)
		}
	}
	return nil
}

func samePath(a, b string) bool {
	return filepath.Clean(realPath(a)) == filepath.Clean(realPath(b))
}
