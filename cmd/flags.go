package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/autobuild/internal/config"
)

// forwardedOption is a documentation compiler option that autobuild accepts
// and passes on in its short form. Options without a metavar are switches
// that may be repeated (-vvv).
type forwardedOption struct {
	short   string
	long    string
	metavar string
	usage   string
}

var forwardedOptions = []forwardedOption{
	{"b", "builder", "BUILDER", "`BUILDER` to use (html, dirhtml, ...)"},
	{"a", "write-all", "", "write all files, not only changed ones"},
	{"E", "fresh-env", "", "do not reuse a saved environment"},
	{"d", "doctree-dir", "PATH", "`PATH` for doctree and environment files"},
	{"j", "jobs", "N", "build in parallel with `N` processes"},
	{"c", "conf-dir", "PATH", "`PATH` of the directory holding the configuration file"},
	{"C", "isolated", "", "use no configuration file"},
	{"D", "define", "SETTING=VALUE", "override a configuration setting (`SETTING=VALUE`)"},
	{"t", "tag", "TAG", "define `TAG`"},
	{"A", "html-define", "NAME=VALUE", "pass a value into HTML templates (`NAME=VALUE`)"},
	{"n", "nitpicky", "", "warn about all missing references"},
	{"v", "verbose", "", "increase verbosity (can be repeated)"},
	{"q", "quiet", "", "no output on stdout, just warnings on stderr"},
	{"Q", "silent", "", "no output at all, not even warnings"},
	{"w", "warning-file", "FILE", "write warnings and errors to `FILE`"},
	{"W", "fail-on-warning", "", "turn warnings into errors"},
	{"T", "show-traceback", "", "show full traceback on exception"},
	{"N", "no-color", "", "do not emit coloured output"},
	{"P", "pdb", "", "run the debugger on exception"},
}

// flagBindings maps autobuild flags to configuration keys.
var flagBindings = map[string]string{
	"host":            "server.host",
	"port":            "server.port",
	"open-browser":    "server.open_browser",
	"allowed-origin":  "server.allowed_origins",
	"builder-command": "build.command",
	"pre-build":       "build.pre_build",
	"no-initial":      "build.no_initial",
	"watch":           "watch.dirs",
	"ignore":          "watch.ignore",
	"re-ignore":       "watch.re_ignore",
	"debounce":        "watch.debounce",
	"poll":            "watch.poll",
	"poll-interval":   "watch.poll_interval",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// AddStandardFlags adds the flag groups ("server", "build", "watch") to cmd.
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) {
	for _, flagType := range flagTypes {
		switch flagType {
		case "server":
			addServerFlags(cmd.Flags())
		case "build":
			addBuildFlags(cmd.Flags())
			addForwardedFlags(cmd.Flags())
		case "watch":
			addWatchFlags(cmd.Flags())
		}
	}
}

func addServerFlags(fs *pflag.FlagSet) {
	fs.Int("port", config.DefaultPort, "port to serve documentation on, 0 picks a free port")
	fs.String("host", config.DefaultHost, "hostname to serve documentation on")
	fs.Bool("open-browser", false, "open the browser after building documentation")
	fs.Int("delay", int(config.DefaultBrowserDelay/time.Second), "seconds to wait before opening the browser")
	fs.StringArray("allowed-origin", nil, "extra origin allowed to open the reload websocket (repeatable)")
}

func addBuildFlags(fs *pflag.FlagSet) {
	fs.String("builder-command", config.DefaultCommand, "documentation compiler command")
	fs.StringArray("pre-build", nil, "`COMMAND` to run before every build (repeatable)")
	fs.Bool("no-initial", false, "skip the initial build")
}

func addWatchFlags(fs *pflag.FlagSet) {
	fs.StringArray("watch", nil, "additional `DIR` to watch (repeatable)")
	fs.StringArray("ignore", nil, "glob expression for files to ignore (repeatable)")
	fs.StringArray("re-ignore", nil, "regular expression for files to ignore (repeatable)")
	fs.Duration("debounce", config.DefaultDebounce, "quiet period that groups changes into one rebuild")
	fs.Bool("poll", false, "poll the file system instead of using change notifications")
	fs.Duration("poll-interval", config.DefaultPollInterval, "interval between polls")
}

func addForwardedFlags(fs *pflag.FlagSet) {
	for _, opt := range forwardedOptions {
		usage := opt.usage + " (passed to the builder)"
		if opt.metavar == "" {
			fs.CountP(opt.long, opt.short, usage)
			continue
		}
		fs.StringArrayP(opt.long, opt.short, nil, usage)
	}
}

// forwardedArgs rebuilds the compiler options given on the command line, in
// short form and in a fixed order.
func forwardedArgs(fs *pflag.FlagSet) []string {
	var args []string
	for _, opt := range forwardedOptions {
		if fs.Lookup(opt.long) == nil {
			continue
		}
		if opt.metavar == "" {
			n, _ := fs.GetCount(opt.long)
			for range n {
				args = append(args, "-"+opt.short)
			}
			continue
		}
		values, _ := fs.GetStringArray(opt.long)
		for _, value := range values {
			args = append(args, "-"+opt.short, value)
		}
	}
	return args
}

// applyFlags binds cmd's flags to v and records positional arguments:
// SOURCEDIR OUTDIR [FILENAMES...], and anything after "--" as extra
// compiler arguments.
func applyFlags(v *viper.Viper, cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()

	for name, key := range flagBindings {
		if flag := fs.Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return err
			}
		}
	}

	if fs.Changed("delay") {
		seconds, _ := fs.GetInt("delay")
		v.Set("server.delay", time.Duration(seconds)*time.Second)
	}

	positional, extra := args, []string(nil)
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional, extra = args[:dash], args[dash:]
	}

	if len(positional) > 0 {
		v.Set("build.source_dir", positional[0])
	}
	if len(positional) > 1 {
		v.Set("build.out_dir", positional[1])
	}
	if len(positional) > 2 {
		v.Set("build.filenames", positional[2:])
	}

	builderArgs := forwardedArgs(fs)
	if len(builderArgs) == 0 {
		builderArgs = v.GetStringSlice("build.args")
	}
	builderArgs = append(builderArgs, extra...)
	if len(builderArgs) > 0 {
		v.Set("build.args", builderArgs)
	}

	// The compiler writes to these locations whichever way the options
	// reached it, so they are read back from the final argument list.
	if dir := optionValue(builderArgs, "d", "doctree-dir"); dir != "" {
		v.Set("build.doctree_dir", dir)
	}
	if file := optionValue(builderArgs, "w", "warning-file"); file != "" {
		v.Set("build.warning_file", file)
	}

	return nil
}

// optionValue returns the value of the first -short or --long option in
// args. It accepts "-d DIR", "-dDIR", "--doctree-dir DIR" and
// "--doctree-dir=DIR".
func optionValue(args []string, short, long string) string {
	for i, arg := range args {
		switch {
		case arg == "-"+short || arg == "--"+long:
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		case strings.HasPrefix(arg, "--"+long+"="):
			return strings.TrimPrefix(arg, "--"+long+"=")
		case strings.HasPrefix(arg, "-"+short) && !strings.HasPrefix(arg, "--"):
			return strings.TrimPrefix(arg, "-"+short)
		}
	}
	return ""
}
