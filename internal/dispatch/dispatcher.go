// Package dispatch connects change notifications to rebuilds.
//
// Events pass through the ignore filter, are grouped by a debouncer and each
// batch triggers one rebuild on a single worker. The output directory never
// reaches the builder because the filter is built with it as a mandatory
// entry; the dispatcher itself has no special cases for it.
package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/autobuild/internal/logging"
	"github.com/conneroisu/autobuild/internal/watcher"
)

// Filter decides whether a path is excluded from triggering rebuilds.
type Filter interface {
	ShouldIgnore(path string) bool
}

// Builder performs one rebuild.
type Builder interface {
	Build(ctx context.Context, changed string) error
}

// Notifier is told when fresh output is available.
type Notifier interface {
	Reload(path string)
}

// Stats summarizes dispatcher activity.
type Stats struct {
	EventsSeen  int64     `json:"events_seen"`
	Ignored     int64     `json:"ignored"`
	Directories int64     `json:"directories"`
	Rebuilds    int64     `json:"rebuilds"`
	Failures    int64     `json:"failures"`
	LastChange  string    `json:"last_change,omitempty"`
	LastRebuild time.Time `json:"last_rebuild,omitempty"`
}

// Dispatcher consumes change events and schedules rebuilds.
type Dispatcher struct {
	filter   Filter
	builder  Builder
	notifier Notifier
	debounce time.Duration
	logger   logging.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sets who is told about finished rebuilds.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithDebounce sets the quiet period that closes a batch.
func WithDebounce(delay time.Duration) Option {
	return func(d *Dispatcher) { d.debounce = delay }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher.
func New(filter Filter, builder Builder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		filter:   filter,
		builder:  builder,
		debounce: watcher.DefaultDebounce,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("dispatch")
	return d
}

// Run processes events until the channel closes or ctx ends. Changes that
// are still pending when events closes are rebuilt before Run returns.
func (d *Dispatcher) Run(ctx context.Context, events <-chan watcher.ChangeEvent) error {
	accepted := make(chan watcher.ChangeEvent)
	debouncer := watcher.NewDebouncer(d.debounce)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(accepted)
		for {
			select {
			case <-gctx.Done():
				return nil
			case event, ok := <-events:
				if !ok {
					return nil
				}
				if !d.Accept(event) {
					continue
				}
				select {
				case accepted <- event:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		debouncer.Run(gctx, accepted)
		return nil
	})

	g.Go(func() error {
		for batch := range debouncer.Output() {
			if gctx.Err() != nil {
				return nil
			}
			d.rebuild(gctx, batch)
		}
		return nil
	})

	return g.Wait()
}

// Accept applies the ignore decision to one event. Directory events are
// skipped since the files inside them produce their own events. For moves
// the destination is judged.
func (d *Dispatcher) Accept(event watcher.ChangeEvent) bool {
	d.mu.Lock()
	d.stats.EventsSeen++
	d.mu.Unlock()

	if event.IsDir {
		d.mu.Lock()
		d.stats.Directories++
		d.mu.Unlock()
		return false
	}

	target := event.Target()
	if d.filter != nil && d.filter.ShouldIgnore(target) {
		d.mu.Lock()
		d.stats.Ignored++
		d.mu.Unlock()
		d.logger.Debug(context.Background(), "ignored change", "path", target, "type", event.Type.String())
		return false
	}

	return true
}

func (d *Dispatcher) rebuild(ctx context.Context, batch []watcher.ChangeEvent) {
	if len(batch) == 0 {
		return
	}

	changed := batch[0].Target()
	d.logger.Info(ctx, "rebuilding", "path", changed, "changes", len(batch))

	err := d.builder.Build(ctx, DisplayPath(changed))

	d.mu.Lock()
	d.stats.Rebuilds++
	d.stats.LastChange = changed
	d.stats.LastRebuild = time.Now()
	if err != nil {
		d.stats.Failures++
	}
	d.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	// Failed builds reload as well.
	if d.notifier != nil {
		d.notifier.Reload(changed)
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// DisplayPath shortens path relative to the working directory when it lies
// beneath it.
func DisplayPath(path string) string {
	cwd, err := os.Getwd()
	if err != nil || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
