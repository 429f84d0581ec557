// Package version reports the autobuild version, filled in at link time or
// read from the module build information.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Set with -ldflags "-X github.com/conneroisu/autobuild/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo is what `autobuild version` and the health endpoint report.
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time" yaml:"build_time"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty" yaml:"dirty"`
}

// ShortCommit is the first seven characters of the commit, or "" when the
// commit is unknown.
func (b *BuildInfo) ShortCommit() string {
	return abbrev(b.GitCommit)
}

// moduleInfo is the module version and vcs.* settings embedded by the Go
// toolchain.
type moduleInfo struct {
	version  string
	settings map[string]string
}

var readModuleInfo = sync.OnceValue(func() moduleInfo {
	mi := moduleInfo{settings: map[string]string{}}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return mi
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		mi.version = v
	}
	for _, s := range info.Settings {
		mi.settings[s.Key] = s.Value
	}
	return mi
})

func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Dirty:     readModuleInfo().settings["vcs.modified"] == "true",
	}
}

// GetVersion prefers the linked Version, then the module version, then
// "dev-" plus the abbreviated VCS revision.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	mi := readModuleInfo()
	if mi.version != "" {
		return mi.version
	}
	if rev := abbrev(mi.settings["vcs.revision"]); rev != "" {
		return "dev-" + rev
	}
	return "dev"
}

func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := readModuleInfo().settings["vcs.revision"]; rev != "" {
		return rev
	}
	return "unknown"
}

// GetShortVersion is the version with the abbreviated commit appended when
// the version does not already contain it.
func GetShortVersion() string {
	v := GetVersion()
	c := abbrev(GetGitCommit())
	if c == "" || v == "dev-"+c {
		return v
	}
	return v + " (" + c + ")"
}

func abbrev(commit string) string {
	if commit == "unknown" || len(commit) < 7 {
		return ""
	}
	return commit[:7]
}

var buildTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func parseBuildTime(s string) time.Time {
	for _, layout := range buildTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
