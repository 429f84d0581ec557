// Package build runs the document compiler and the optional pre-build
// commands, one rebuild at a time.
package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mgutz/str"

	"github.com/conneroisu/autobuild/internal/errors"
	"github.com/conneroisu/autobuild/internal/logging"
)

// DefaultCommand is the document compiler run when none is configured.
const DefaultCommand = "sphinx-build"

// waitDelay bounds how long a cancelled command may hold its output pipes.
const waitDelay = 2 * time.Second

const outOfSyncNotice = "The server will continue serving the build folder, but the contents " +
	"being served are no longer in sync with the documentation sources. " +
	"Please fix the cause of the error above or press Ctrl+C to stop the server."

// Options configures a Builder.
type Options struct {
	// Command is the compiler command line, split like a shell would.
	Command string
	// Args are compiler options placed before the source and output
	// directories.
	Args      []string
	SourceDir string
	OutDir    string
	Filenames []string
	// PreBuild commands run in order before every build.
	PreBuild []string
	// URL is announced after each build when set.
	URL string
	// Dir is the working directory for all commands.
	Dir string

	Stdout io.Writer
	Stderr io.Writer
}

// Builder runs rebuilds. Build calls are serialized so two compiler
// processes never write the output directory at the same time.
type Builder struct {
	command   []string
	args      []string
	preBuild  [][]string
	sourceDir string
	outDir    string
	filenames []string
	url       string
	dir       string
	stdout    io.Writer
	stderr    io.Writer

	console *logging.Console
	logger  logging.Logger
	metrics *BuildMetrics
	mu      sync.Mutex
}

// NewBuilder validates opts and returns a Builder. Source and output
// directories are made absolute once, here.
func NewBuilder(opts Options, console *logging.Console, logger logging.Logger) (*Builder, error) {
	command := opts.Command
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	argv := str.ToArgv(command)
	if len(argv) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid, "build command is empty")
	}

	preBuild := make([][]string, 0, len(opts.PreBuild))
	for _, line := range opts.PreBuild {
		cmd := str.ToArgv(line)
		if len(cmd) == 0 {
			continue
		}
		preBuild = append(preBuild, cmd)
	}

	if opts.SourceDir == "" || opts.OutDir == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, "source and output directories are required")
	}

	sourceDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInvalidPath, "invalid source directory", err).WithPath(opts.SourceDir)
	}
	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInvalidPath, "invalid output directory", err).WithPath(opts.OutDir)
	}

	if console == nil {
		console = logging.NewConsole(os.Stdout)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	return &Builder{
		command:   argv,
		args:      append([]string(nil), opts.Args...),
		preBuild:  preBuild,
		sourceDir: sourceDir,
		outDir:    outDir,
		filenames: append([]string(nil), opts.Filenames...),
		url:       opts.URL,
		dir:       opts.Dir,
		stdout:    stdout,
		stderr:    stderr,
		console:   console,
		logger:    logger.WithComponent("builder"),
		metrics:   NewBuildMetrics(),
	}, nil
}

// Arguments returns the compiler arguments: options, then the source and
// output directories, then the selected filenames.
func (b *Builder) Arguments() []string {
	args := make([]string, 0, len(b.args)+2+len(b.filenames))
	args = append(args, b.args...)
	args = append(args, b.sourceDir, b.outDir)
	args = append(args, b.filenames...)
	return args
}

// CommandLine returns the full compiler command line.
func (b *Builder) CommandLine() []string {
	return append(append([]string(nil), b.command...), b.Arguments()...)
}

// SourceDir returns the absolute source directory.
func (b *Builder) SourceDir() string { return b.sourceDir }

// OutDir returns the absolute output directory.
func (b *Builder) OutDir() string { return b.outDir }

// SetURL changes the address announced after builds. The server calls it
// once the listening port is known.
func (b *Builder) SetURL(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.url = url
}

// Metrics returns the build metrics.
func (b *Builder) Metrics() *BuildMetrics { return b.metrics }

// Build runs the pre-build commands and the compiler. changed names the file
// that triggered the rebuild; it is empty for the initial build.
//
// A failing pre-build command stops the build. A failing compiler leaves the
// previous output in place. Either way the error is returned for the caller
// to report; the server keeps running.
func (b *Builder) Build(ctx context.Context, changed string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	result := Result{Changed: changed}

	err := b.run(ctx, changed)

	result.Duration = time.Since(start)
	result.Error = err
	if code, ok := exitCode(err); ok {
		result.ExitCode = code
	}
	b.metrics.RecordBuild(result)

	if err != nil {
		b.logger.Warn(ctx, err, "build failed", "changed", changed, "duration", result.Duration)
	} else {
		b.logger.Debug(ctx, "build finished", "changed", changed, "duration", result.Duration)
	}

	return err
}

func (b *Builder) run(ctx context.Context, changed string) error {
	if changed != "" {
		b.console.Message("Detected change: %s. Rebuilding...", changed)
	}

	for _, cmd := range b.preBuild {
		b.console.Message("pre-build")
		b.console.Command(cmd)
		if err := b.exec(ctx, cmd); err != nil {
			code, _ := exitCode(err)
			b.console.Failure("Pre-build command exited with exit code: %d", code)
			b.console.Plain("Please fix the cause of the error above or press Ctrl+C to stop the server.")
			return errors.NewBuildError(errors.ErrCodePreBuildFailed, "pre-build command failed", err).
				WithContext("command", logging.QuoteCommand(cmd)).
				WithContext("exit_code", code)
		}
	}

	cmd := b.CommandLine()
	b.console.Command(cmd)
	err := b.exec(ctx, cmd)
	if err != nil {
		code, _ := exitCode(err)
		b.console.Failure("%s exited with exit code: %d", filepath.Base(b.command[0]), code)
		b.console.Plain(outOfSyncNotice)
		err = errors.NewBuildError(errors.ErrCodeBuildFailed, "document build failed", err).
			WithContext("command", logging.QuoteCommand(cmd)).
			WithContext("exit_code", code)
	}

	if b.url != "" {
		b.console.Message("Serving on %s", b.url)
	}

	return err
}

func (b *Builder) exec(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = b.dir
	cmd.Stdout = b.stdout
	cmd.Stderr = b.stderr
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", argv[0], ctx.Err())
		}
		return err
	}
	return nil
}

// exitCode extracts the process exit status from err. Errors that never
// produced a status, such as a missing executable, report -1.
func exitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return -1, true
}
