package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/aggregator/pkg/logger"
)

const (
	readyAttempts = 30
	readyDelay    = 2 * time.Second
	drainPoll     = 200 * time.Millisecond
)

// Report summarizes one publishing cycle.
type Report struct {
	Expect   Expectation
	Sent     int
	Failed   int
	Result   PublishResult
	Before   Stats
	After    Stats
	Duration time.Duration
}

// Runner drives publishing cycles against one aggregator.
type Runner struct {
	cfg       Config
	client    *Client
	generator *Generator
	logger    logger.Logger
}

// NewRunner creates a runner. cfg must already be valid.
func NewRunner(cfg Config, gen *Generator) *Runner { //nolint:gocritic // hugeParam: built once
	if gen == nil {
		gen = NewGenerator(nil)
	}
	return &Runner{
		cfg:       cfg,
		client:    NewClient(cfg.BaseURL, cfg.Timeout, cfg.Retries),
		generator: gen,
		logger:    logger.Get().Named("publisher"),
	}
}

// Run executes the configured mode. Continuous mode runs until ctx is done.
func Run(ctx context.Context, cfg Config) error { //nolint:gocritic // hugeParam
	if err := cfg.Validate(); err != nil {
		return err
	}
	r := NewRunner(cfg, nil)

	if err := r.client.WaitReady(ctx, readyAttempts, readyDelay); err != nil {
		return err
	}
	r.logger.Info(ctx, "aggregator is ready", logger.String("url", cfg.BaseURL))

	if cfg.Mode == ModeOneShot {
		_, err := r.Cycle(ctx)
		return err
	}

	for cycle := 1; ; cycle++ {
		r.logger.Info(ctx, "publishing cycle", logger.Int("cycle", cycle))
		if _, err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error(ctx, "cycle failed", logger.Int("cycle", cycle), logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Interval):
		}
	}
}

// Cycle generates one event set, sends it in batches, waits for the
// aggregator to settle and, if enabled, verifies the counter deltas.
func (r *Runner) Cycle(ctx context.Context) (Report, error) {
	start := time.Now()

	before, err := r.client.Stats(ctx)
	if err != nil {
		return Report{}, err
	}

	events, expect := r.generator.Generate(r.cfg.Events, r.cfg.DuplicateRate, r.cfg.Topic, r.cfg.Source)
	r.logger.Info(ctx, "generated events",
		logger.Int("total", expect.Received),
		logger.Int("unique", expect.Unique),
		logger.Int("duplicates", expect.Duplicates),
	)

	report := Report{Expect: expect, Before: before}
	r.send(ctx, Batches(events, r.cfg.BatchSize), &report)

	after, err := r.waitSettled(ctx, before, report.Sent)
	report.After = after
	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}

	r.logger.Info(ctx, "cycle complete",
		logger.Int("sent", report.Sent),
		logger.Int("failed", report.Failed),
		logger.Int("accepted", report.Result.Accepted),
		logger.Int("duplicates", report.Result.Duplicates),
		logger.Duration("duration", report.Duration),
	)

	if report.Failed > 0 {
		return report, fmt.Errorf("%d of %d events were not delivered", report.Failed, expect.Received)
	}
	if r.cfg.Verify {
		if err := Verify(before, after, expect); err != nil {
			return report, err
		}
		r.logger.Info(ctx, "counters verified")
	}
	return report, nil
}

// send posts batches with a fixed number of workers.
func (r *Runner) send(ctx context.Context, batches [][]Event, report *Report) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	work := make(chan []Event)

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				res, err := r.client.Publish(ctx, batch)

				mu.Lock()
				if err != nil {
					report.Failed += len(batch)
					r.logger.Error(ctx, "batch failed", logger.Int("size", len(batch)), logger.Error(err))
				} else {
					report.Sent += len(batch)
					report.Result.Accepted += res.Accepted
					report.Result.Duplicates += res.Duplicates
					report.Result.Failed += res.Failed
				}
				mu.Unlock()
			}
		}()
	}

	for _, batch := range batches {
		select {
		case <-ctx.Done():
		case work <- batch:
			continue
		}
		break
	}
	close(work)
	wg.Wait()
}

// waitSettled polls /stats until the aggregator has received sent more
// events than before and has drained its queue.
func (r *Runner) waitSettled(ctx context.Context, before Stats, sent int) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DrainTimeout)
	defer cancel()

	for {
		st, err := r.client.Stats(ctx)
		if err == nil && st.Received-before.Received >= int64(sent) && st.Settled() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
		case <-time.After(drainPoll):
		}
	}
}
