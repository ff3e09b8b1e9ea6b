// Package feed keeps derived state current by reacting to MongoDB change
// streams and to the passage of time.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"golang.org/x/sync/errgroup"
)

// Source is one live data feed.
type Source struct {
	Name string
	Open func(ctx context.Context) (db.ChangeStream, error)
}

// Watcher calls OnChange once at start, after every burst of change events
// and every Interval. Events that arrive while OnChange runs are coalesced
// into a single follow-up call.
type Watcher struct {
	Sources  []Source
	OnChange func(ctx context.Context) error
	// Interval forces a refresh so day boundaries are picked up without data
	// changes. Zero disables it.
	Interval time.Duration
	// RetryDelay is the wait before reopening a failed stream. Defaults to 5s.
	RetryDelay time.Duration
	Log        logrus.FieldLogger
}

// Run blocks until ctx is cancelled. Closing ctx closes every open stream.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Log == nil {
		w.Log = logrus.StandardLogger()
	}
	if w.RetryDelay <= 0 {
		w.RetryDelay = 5 * time.Second
	}

	changed := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range w.Sources {
		g.Go(func() error {
			w.watch(ctx, src, changed)
			return nil
		})
	}
	g.Go(func() error {
		return w.loop(ctx, changed)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) watch(ctx context.Context, src Source, changed chan<- struct{}) {
	log := w.Log.WithField("feed", src.Name)
	for {
		stream, err := src.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("Failed to open change stream")
			if !sleep(ctx, w.RetryDelay) {
				return
			}
			continue
		}
		log.Debug("Change stream opened")

		for stream.Next(ctx) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
		err = stream.Err()
		_ = stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("Change stream closed, reopening")
		if !sleep(ctx, w.RetryDelay) {
			return
		}
	}
}

func (w *Watcher) loop(ctx context.Context, changed <-chan struct{}) error {
	var tick <-chan time.Time
	if w.Interval > 0 {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-tick:
		}
		w.refresh(ctx)
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	if err := w.OnChange(ctx); err != nil && ctx.Err() == nil {
		w.Log.WithError(err).Error("Refresh failed")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
