//go:build property

package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

// TestConfigurationProperties tests configuration loading and validation properties
func TestConfigurationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("ports in range load", prop.ForAll(
		func(port int) bool {
			v := viper.New()
			v.Set("server.port", port)
			cfg, err := LoadFrom(v)
			return err == nil && cfg.Server.Port == port
		},
		gen.IntRange(0, 65535),
	))

	properties.Property("ports out of range are rejected", prop.ForAll(
		func(port int) bool {
			v := viper.New()
			v.Set("server.port", port)
			_, err := LoadFrom(v)
			return err != nil
		},
		gen.OneGenOf(gen.IntRange(-10000, -1), gen.IntRange(65536, 200000)),
	))

	properties.Property("output directory is always an ignore pattern", prop.ForAll(
		func(parts []string, ignores []string) bool {
			out := filepath.Join(append([]string{t.TempDir()}, parts...)...)
			cfg := &Config{
				Build: BuildConfig{OutDir: out},
				Watch: WatchConfig{Ignore: ignores},
			}
			for _, p := range cfg.IgnorePatterns() {
				if p == out {
					return true
				}
			}
			return false
		},
		gen.SliceOfN(2, gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("ignore patterns are unique", prop.ForAll(
		func(ignores []string) bool {
			cfg := &Config{Watch: WatchConfig{Ignore: append(ignores, ignores...)}}
			seen := map[string]bool{}
			for _, p := range cfg.IgnorePatterns() {
				if seen[p] || strings.TrimSpace(p) == "" {
					return false
				}
				seen[p] = true
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
