package watcher

import (
	"context"
	"slices"
	"strings"
	"time"
)

// DefaultDebounce is the quiet period that ends a batch.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer groups rapid file changes together. A batch is released once no
// event has arrived for the configured delay. While the consumer is busy the
// batch keeps growing, so a slow rebuild absorbs the changes made during it.
type Debouncer struct {
	delay  time.Duration
	output chan []ChangeEvent
}

// NewDebouncer creates a debouncer. A negative delay is treated as zero.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer{
		delay:  delay,
		output: make(chan []ChangeEvent),
	}
}

// Output returns the channel batches are delivered on. It is closed when Run
// returns.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Run consumes events until in is closed or ctx ends. Batches keep arrival
// order and hold one event per path, the first one seen. When in closes, a
// pending batch is still delivered.
func (d *Debouncer) Run(ctx context.Context, in <-chan ChangeEvent) {
	defer close(d.output)

	timer := time.NewTimer(d.delay)
	timer.Stop()
	defer timer.Stop()

	var (
		pending []ChangeEvent
		seen    = make(map[string]struct{})
		ready   bool
	)

	reset := func() {
		pending = nil
		seen = make(map[string]struct{})
		ready = false
	}

	for {
		var out chan<- []ChangeEvent
		if ready {
			out = d.output
		}

		select {
		case <-ctx.Done():
			return

		case event, ok := <-in:
			if !ok {
				if len(pending) > 0 {
					select {
					case d.output <- pending:
					case <-ctx.Done():
					}
				}
				return
			}
			if _, dup := seen[event.Target()]; !dup {
				seen[event.Target()] = struct{}{}
				pending = append(pending, event)
			}
			ready = false
			timer.Reset(d.delay)

		case <-timer.C:
			ready = len(pending) > 0

		case out <- pending:
			reset()
		}
	}
}

func sortByPath(events []ChangeEvent) {
	slices.SortFunc(events, func(a, b ChangeEvent) int {
		return strings.Compare(a.Path, b.Path)
	})
}
