package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/pipeline"
	"famforge/internal/queue"
	"famforge/internal/services"
)

// DrainLiftover polls families on the lift-over list until the list is
// empty. Families whose lift-over finished move to the build list.
func (c *Coordinator) DrainLiftover(ctx context.Context) error {
	c.liftoverActive.Store(true)
	defer func() {
		c.liftoverActive.Store(false)
		c.signal(c.buildWake)
	}()
	logger := c.logger.With(logging.Stage(family.StageLiftover))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok, err := c.store.PopReady(ctx, queue.LiftoverIn)
		if err != nil {
			return err
		}
		if !ok {
			remaining, err := c.store.Len(ctx, queue.LiftoverIn)
			if err != nil {
				return err
			}
			if remaining == 0 {
				logger.Info("liftover list drained", logging.String(logging.FieldEventType, "liftover_drained"))
				return nil
			}
			if err := c.wait(ctx, c.liftoverWake, queue.LiftoverIn); err != nil {
				return err
			}
			continue
		}

		result, err := c.pipe.AdvanceLiftover(ctx, entry.Family)
		if err != nil {
			if err := c.handleStepError(ctx, logger, queue.LiftoverIn, entry, err); err != nil {
				return err
			}
			continue
		}
		if err := c.apply(ctx, logger, queue.LiftoverIn, entry, result); err != nil {
			return err
		}
	}
}

// DrainBuild polls families on the build list while either list still holds
// work or the lift-over loop may still hand families over.
func (c *Coordinator) DrainBuild(ctx context.Context) error {
	logger := c.logger.With(logging.Stage(family.StageBuild))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok, err := c.store.PopReady(ctx, queue.LiftoverDone)
		if err != nil {
			return err
		}
		if !ok {
			done, err := c.buildFinished(ctx)
			if err != nil {
				return err
			}
			if done {
				logger.Info("build list drained", logging.String(logging.FieldEventType, "build_drained"))
				return nil
			}
			if err := c.wait(ctx, c.buildWake, queue.LiftoverDone); err != nil {
				return err
			}
			continue
		}

		if _, err := c.store.PushTail(ctx, queue.PfamIn, entry.Family); err != nil {
			return err
		}
		result, stepErr := c.pipe.AdvanceBuild(ctx, entry.Family)
		if stepErr != nil {
			err = c.handleStepError(ctx, logger, queue.LiftoverDone, entry, stepErr)
		} else {
			err = c.apply(ctx, logger, queue.LiftoverDone, entry, result)
		}
		if _, rmErr := c.store.Remove(context.WithoutCancel(ctx), queue.PfamIn, entry.Family); rmErr != nil && err == nil {
			err = rmErr
		}
		if err != nil {
			return err
		}
	}
}

func (c *Coordinator) buildFinished(ctx context.Context) (bool, error) {
	if c.liftoverActive.Load() {
		return false, nil
	}
	for _, list := range []queue.List{queue.LiftoverIn, queue.LiftoverDone} {
		n, err := c.store.Len(ctx, list)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// apply routes a step result: pending families go back on their list with
// a delay, finished lift-overs move to the build list, and terminal results
// are tallied.
func (c *Coordinator) apply(ctx context.Context, logger *slog.Logger, list queue.List, entry queue.Entry, result pipeline.StepResult) error {
	// The pass already ran; its outcome is persisted even during shutdown.
	ctx = context.WithoutCancel(ctx)
	switch result.Action {
	case pipeline.Requeue:
		delay := c.pipe.PollDelay(entry.Polls)
		if _, err := c.store.Requeue(ctx, list, entry.Family, entry.Polls+1, delay); err != nil {
			return err
		}
		c.watch(entry.Family)
		logger.Debug("family still pending",
			logging.Family(entry.Family),
			logging.String("verdict", result.Verdict.String()),
			logging.Int("polls", entry.Polls+1),
			logging.Duration("next_check", delay),
		)
	case pipeline.Advance:
		if _, err := c.store.PushTail(ctx, queue.LiftoverDone, entry.Family); err != nil {
			return err
		}
		c.signal(c.buildWake)
	case pipeline.Terminal:
		c.unwatch(entry.Family)
		c.finish(ctx, logger, result)
	case pipeline.Drop:
		c.unwatch(entry.Family)
		c.tally.drop()
		logger.Info("dropped queued family",
			logging.Family(entry.Family),
			logging.String("reason", result.Reason),
			logging.String(logging.FieldEventType, "family_dropped"),
		)
	}
	return nil
}

// handleStepError returns run-fatal errors and cancellations to the caller.
// Anything else is logged and the family is retried after the usual delay.
func (c *Coordinator) handleStepError(ctx context.Context, logger *slog.Logger, list queue.List, entry queue.Entry, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		if _, pushErr := c.store.Requeue(context.WithoutCancel(ctx), list, entry.Family, entry.Polls, 0); pushErr != nil {
			logger.Error("failed to return family to queue on shutdown",
				logging.Family(entry.Family),
				logging.Error(pushErr),
			)
		}
		return err
	}
	if services.IsFatalRun(err) {
		return err
	}
	logging.ErrorWithContext(logger, "family pass failed", "step_failed",
		logging.Family(entry.Family),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the family directory and its record file"),
		logging.String(logging.FieldImpact, "family will be checked again"),
	)
	_, reqErr := c.store.Requeue(ctx, list, entry.Family, entry.Polls+1, c.pipe.PollDelay(entry.Polls))
	return reqErr
}

// wait blocks until the earliest entry on lists is due, a wake-up arrives,
// or ctx ends. With nothing scheduled it waits idle_wait.
func (c *Coordinator) wait(ctx context.Context, wake <-chan struct{}, lists ...queue.List) error {
	d := time.Duration(c.cfg.Workflow.IdleWait) * time.Second
	due, ok, err := c.store.NextDue(ctx, lists...)
	if err != nil {
		return err
	}
	if ok {
		d = time.Until(due)
	}
	d = max(d, minWait)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
	case <-timer.C:
	}
	return nil
}
