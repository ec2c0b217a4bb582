package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	cmdpkg "github.com/stupiduntilnot/lmrelay/internal/commander"
	"github.com/stupiduntilnot/lmrelay/internal/control"
	"github.com/stupiduntilnot/lmrelay/internal/db"
	"github.com/stupiduntilnot/lmrelay/internal/metrics"
)

type updateHandler interface {
	HandleUpdate(ctx context.Context, update cmdpkg.Update)
}

// poller long-polls the platform and hands every update to its own
// goroutine, at most concurrency at a time.
type poller struct {
	commander   cmdpkg.Commander
	handler     updateHandler
	breaker     *control.CircuitBreaker
	recorder    db.Recorder
	metrics     *metrics.Metrics
	timeout     int
	sleep       time.Duration
	concurrency int
	logger      zerolog.Logger
}

// run polls until ctx is cancelled, then waits for in-flight handlers.
// Handlers run on a context that is not cancelled with ctx so replies that
// are already being generated still get delivered.
func (p *poller) run(ctx context.Context, offset int64) error {
	var handlers errgroup.Group
	handlers.SetLimit(p.concurrency)
	defer handlers.Wait()
	handlerCtx := context.WithoutCancel(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.breaker.Allow(time.Now()) {
			sleepCtx(ctx, p.sleep)
			continue
		}

		updates, err := p.commander.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.pollFailed(err)
			sleepCtx(ctx, control.PollBackoff(p.sleep, p.breaker.Failures()))
			continue
		}
		if p.breaker.RecordSuccess() {
			p.logger.Info().Msg("polling recovered")
			p.recorder.Record(db.EventCircuitClosed, map[string]any{"recovered": true})
		}
		if len(updates) == 0 {
			sleepCtx(ctx, p.sleep)
			continue
		}

		for _, update := range updates {
			update := update
			offset = update.UpdateID + 1
			handlers.Go(func() error {
				p.handler.HandleUpdate(handlerCtx, update)
				return nil
			})
		}
	}
}

func (p *poller) pollFailed(err error) {
	p.metrics.PollFailures.Inc()
	opened := p.breaker.RecordFailure(time.Now())
	p.logger.Warn().Err(err).Int("failures", p.breaker.Failures()).Msg("getUpdates failed")
	p.recorder.Record(db.EventPollFailed, map[string]any{
		"error":    err.Error(),
		"failures": p.breaker.Failures(),
	})
	if opened {
		p.logger.Error().Dur("cooldown", p.breaker.Cooldown).Msg("polling paused")
		p.recorder.Record(db.EventCircuitOpened, map[string]any{
			"threshold":        p.breaker.Threshold,
			"cooldown_seconds": int(p.breaker.Cooldown.Seconds()),
		})
	}
}

// dropPending returns the offset just past every update queued before start.
func (p *poller) dropPending(ctx context.Context) (int64, error) {
	updates, err := p.commander.GetUpdates(ctx, -1, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}
	last := updates[len(updates)-1].UpdateID
	p.logger.Info().Int64("offset", last+1).Msg("dropping pending updates")
	return last + 1, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
