// Package worker consumes activity events from the queue and persists them
// to the activity feed.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"splitledger/internal/amqp"
	"splitledger/internal/ledger"
)

// Options tunes the consumer pool.
type Options struct {
	URL         string
	Exchange    string
	Queue       string
	Prefetch    int
	Concurrency int
}

// ActivityWorker runs a pool of competing consumers on the activity queue.
// Each consumer holds its own connection and reconnects with backoff, so one
// broker hiccup never takes the pool down.
type ActivityWorker struct {
	store ledger.ActivityStore
	opts  Options
}

func NewActivityWorker(store ledger.ActivityStore, opts Options) *ActivityWorker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &ActivityWorker{
		store: store,
		opts:  opts,
	}
}

// Run blocks until ctx is cancelled. Returns ctx.Err() on shutdown.
func (w *ActivityWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		consumer := i
		g.Go(func() error {
			return w.consumeLoop(ctx, consumer)
		})
	}
	return g.Wait()
}

func (w *ActivityWorker) consumeLoop(ctx context.Context, consumer int) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		client, err := amqp.NewClient(w.opts.URL, w.opts.Exchange, w.opts.Queue)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to connect to AMQP broker",
				"consumer", consumer,
				"error", err,
				"retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = time.Second

		err = client.ConsumeActivities(ctx, w.opts.Prefetch, func(msg *amqp.ActivityMessage) error {
			return w.HandleActivityMessage(ctx, msg)
		})
		client.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.ErrorContext(ctx, "Consumer stopped, reconnecting",
			"consumer", consumer,
			"error", err)
	}
}

// HandleActivityMessage persists one event. A returned error requeues the
// delivery.
func (w *ActivityWorker) HandleActivityMessage(ctx context.Context, msg *amqp.ActivityMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("activity message without type")
	}

	saved, err := w.store.SaveActivity(ctx, msg.ToActivity())
	if err != nil {
		return fmt.Errorf("save activity: %w", err)
	}

	slog.InfoContext(ctx, "Saved activity event",
		"id", saved.ID,
		"type", saved.Type)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
