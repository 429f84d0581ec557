package cmd

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/autobuild/internal/build"
	"github.com/conneroisu/autobuild/internal/config"
	"github.com/conneroisu/autobuild/internal/dispatch"
	"github.com/conneroisu/autobuild/internal/ignore"
	"github.com/conneroisu/autobuild/internal/logging"
	"github.com/conneroisu/autobuild/internal/watcher"
)

// app holds the pieces shared by the serve, watch and build commands.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	console *logging.Console
	filter  *ignore.Filter
	builder *build.Builder
	lock    *build.OutputLock
}

// newApp creates the output directory, locks it and sets up the ignore
// filter and builder. Close releases the lock.
func newApp(cfg *config.Config, stdout, stderr io.Writer) (*app, error) {
	if err := requireDirs(cfg); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}

	filter, err := ignore.New(cfg.IgnorePatterns(), cfg.IgnoreRegexes(),
		ignore.WithGlobCacheTTL(cfg.Watch.GlobCacheTTL))
	if err != nil {
		return nil, err
	}
	logger.Debug(context.Background(), "ignore filter ready", "filter", filter.String())

	lock, err := build.AcquireOutputLock(cfg.Build.OutDir)
	if err != nil {
		return nil, err
	}

	console := logging.NewConsole(stdout)
	builder, err := build.NewBuilder(build.Options{
		Command:   cfg.Build.Command,
		Args:      cfg.Build.Args,
		SourceDir: cfg.Build.SourceDir,
		OutDir:    cfg.Build.OutDir,
		Filenames: cfg.Build.Filenames,
		PreBuild:  cfg.Build.PreBuild,
		Stdout:    stdout,
		Stderr:    stderr,
	}, console, logger)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		console: console,
		filter:  filter,
		builder: builder,
		lock:    lock,
	}, nil
}

// Close releases the output directory lock.
func (a *app) Close() error {
	return a.lock.Release()
}

// initialBuild runs the first build unless disabled. A failure is reported
// by the builder and does not stop autobuild.
func (a *app) initialBuild(ctx context.Context) {
	if a.cfg.Build.NoInitial {
		return
	}
	_ = a.builder.Build(ctx, "")
}

// newSource creates the change source for the watched directories.
func (a *app) newSource() (watcher.Source, error) {
	var source watcher.Source
	if a.cfg.Watch.Poll {
		poller := watcher.NewPollingWatcher(a.cfg.Watch.PollInterval, a.logger)
		poller.AddFilter(watcher.NoVCSFilter)
		poller.AddFilter(watcher.SkipPathsFilter(a.skipDirs()...))
		source = poller
	} else {
		fw, err := watcher.NewFileWatcher(a.logger)
		if err != nil {
			return nil, err
		}
		fw.AddFilter(watcher.NoVCSFilter)
		fw.AddFilter(watcher.SkipPathsFilter(a.skipDirs()...))
		source = fw
	}

	for _, dir := range a.cfg.WatchDirs() {
		if err := source.AddRecursive(dir); err != nil {
			a.logger.Warn(context.Background(), err, "cannot watch directory", "dir", dir)
			continue
		}
		a.logger.Debug(context.Background(), "watching", "dir", dir)
	}
	return source, nil
}

func (a *app) skipDirs() []string {
	dirs := []string{a.builder.OutDir()}
	if a.cfg.Build.DoctreeDir != "" {
		dirs = append(dirs, a.cfg.Build.DoctreeDir)
	}
	return dirs
}

// startWatching adds the change source and the dispatcher to g. The
// returned dispatcher reports statistics.
func (a *app) startWatching(ctx context.Context, g *errgroup.Group, notifier dispatch.Notifier) (*dispatch.Dispatcher, error) {
	source, err := a.newSource()
	if err != nil {
		return nil, err
	}

	opts := []dispatch.Option{
		dispatch.WithDebounce(a.cfg.Watch.Debounce),
		dispatch.WithLogger(a.logger),
	}
	if notifier != nil {
		opts = append(opts, dispatch.WithNotifier(notifier))
	}
	d := dispatch.New(a.filter, a.builder, opts...)

	if err := source.Start(ctx); err != nil {
		_ = source.Stop()
		return nil, err
	}

	g.Go(func() error {
		<-ctx.Done()
		return source.Stop()
	})
	g.Go(func() error {
		return d.Run(ctx, source.Events())
	})

	return d, nil
}
