package jobsync

import (
	"log/slog"
	"time"
)

// DefaultInterval is the period between two polls of the same resource.
const DefaultInterval = time.Second

type options struct {
	interval time.Duration
	logger   *slog.Logger
	onChange func(View)
	onAppend func([]string)
	follow   bool
}

// Option configures a Poller, a ListSynchronizer or a LogSynchronizer.
// Options that do not apply to a component are ignored by it.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithInterval sets the polling period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnChange registers a callback invoked with a fresh View after changes
// applied to the job collection. Calls are serialized and never go back in
// time: a view older than one already delivered is dropped. The callback runs
// without the state lock held but must not mutate the same synchronizer.
func WithOnChange(fn func(View)) Option {
	return func(o *options) { o.onChange = fn }
}

// WithOnAppend registers a callback invoked with the lines added by each log fetch.
func WithOnAppend(fn func(lines []string)) Option {
	return func(o *options) { o.onAppend = fn }
}

// WithFollowUntilTerminal makes a LogSynchronizer stop on its own once the job
// is terminal and its remaining lines have been drained.
func WithFollowUntilTerminal() Option {
	return func(o *options) { o.follow = true }
}
