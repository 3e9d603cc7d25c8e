package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"famforge/internal/config"
	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/notifications"
	"famforge/internal/pipeline"
	"famforge/internal/queue"
	"famforge/internal/services"
)

// LockFile is the drain lock created in the state directory.
const LockFile = "famforge-drain.lock"

// minWait keeps an idle loop from spinning on the store when no delay is
// configured.
const minWait = 10 * time.Millisecond

// Stepper advances one family by one pass. *pipeline.Pipeline implements it.
type Stepper interface {
	AdvanceLiftover(ctx context.Context, id string) (pipeline.StepResult, error)
	AdvanceBuild(ctx context.Context, id string) (pipeline.StepResult, error)
	PollDelay(polls int) time.Duration
	Layout() *family.Layout
}

// Coordinator owns the drain loops for one run.
type Coordinator struct {
	cfg    *config.Config
	store  *queue.Store
	pipe   Stepper
	logger *slog.Logger
	runID  string
	tally  *tally
	notify notifications.Service

	liftoverWake   chan struct{}
	buildWake      chan struct{}
	liftoverActive atomic.Bool
	waker          *waker
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used by the drain loops.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunID stamps log lines and the summary with runID.
func WithRunID(runID string) Option {
	return func(c *Coordinator) {
		c.runID = runID
	}
}

// WithNotifier sends an alert for every family filed as failed.
func WithNotifier(n notifications.Service) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notify = n
		}
	}
}

// New constructs a Coordinator over store and pipe.
func New(cfg *config.Config, store *queue.Store, pipe Stepper, opts ...Option) (*Coordinator, error) {
	if cfg == nil || store == nil || pipe == nil {
		return nil, services.Wrap(services.ErrConfiguration, "coordinator", "new",
			"config, store and pipeline are required", nil)
	}
	c := &Coordinator{
		cfg:          cfg,
		store:        store,
		pipe:         pipe,
		logger:       logging.NewNop(),
		notify:       notifications.NewService(nil),
		liftoverWake: make(chan struct{}, 1),
		buildWake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "coordinator")
	if c.runID != "" {
		c.logger = c.logger.With(logging.String(logging.FieldRunID, c.runID))
	}
	c.tally = newTally(c.runID, time.Now())
	return c, nil
}

// Enqueue adds a family whose lift-over job has been launched.
func (c *Coordinator) Enqueue(ctx context.Context, id string) error {
	if _, err := c.store.PushTail(ctx, queue.LiftoverIn, id); err != nil {
		return err
	}
	c.signal(c.liftoverWake)
	return nil
}

// Record adds a terminal result produced outside the drain loops, such as
// an alignment failure at start, to the run summary.
func (c *Coordinator) Record(ctx context.Context, result pipeline.StepResult) {
	c.finish(ctx, c.logger, result)
}

func (c *Coordinator) finish(ctx context.Context, logger *slog.Logger, result pipeline.StepResult) {
	c.tally.record(result)
	if result.Disposition != family.Failed {
		return
	}
	if err := c.notify.NotifyFamilyFailed(ctx, result.Family, result.Stage.Label(), result.Reason); err != nil {
		logging.WarnWithContext(logger, "failure notification not sent", "notification_failed",
			logging.Family(result.Family),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the failure is still recorded in the run summary"),
		)
	}
}

// Summary returns the tallies collected so far.
func (c *Coordinator) Summary() Summary {
	return c.tally.summary(time.Now())
}

// Run drains both lists concurrently until every queued family has reached a
// terminal disposition or ctx is cancelled. It holds the drain lock for its
// whole duration.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	lockPath := filepath.Join(c.cfg.Paths.StateDir, LockFile)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return c.Summary(), fmt.Errorf("acquire drain lock: %w", err)
	}
	if !ok {
		return c.Summary(), services.Wrap(services.ErrConfiguration, "coordinator", "run",
			"another drain is already running against "+c.store.Path(), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release drain lock", logging.Error(err))
		}
	}()

	if err := c.prepare(ctx); err != nil {
		return c.Summary(), err
	}

	group, gctx := errgroup.WithContext(ctx)
	if c.cfg.Workflow.WatchLogs {
		w, err := newWaker(c.store, c.pipe.Layout(), c.logger, c.wakeAll)
		if err != nil {
			logging.WarnWithContext(c.logger, "log watcher unavailable; relying on polling", "watcher_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "finished jobs are noticed at the next scheduled poll"),
			)
		} else {
			c.waker = w
			c.watchQueued(ctx)
			watchCtx, stopWatch := context.WithCancel(gctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				w.run(watchCtx)
			}()
			defer func() {
				stopWatch()
				<-done
				w.close()
				c.waker = nil
			}()
		}
	}

	c.logger.Info("drain started", logging.String(logging.FieldEventType, "drain_start"))
	c.liftoverActive.Store(true)
	group.Go(func() error { return c.DrainLiftover(gctx) })
	group.Go(func() error { return c.DrainBuild(gctx) })
	err = group.Wait()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		err = ctxErr
	}

	summary := c.Summary()
	c.logSummary(summary)
	return summary, err
}

// prepare finishes interrupted directory moves, returns families claimed by
// a build worker that never released them to the build list, and requeues
// active families that dropped off every list.
func (c *Coordinator) prepare(ctx context.Context) error {
	fixed, err := c.pipe.Layout().Reconcile()
	if err != nil {
		return fmt.Errorf("reconcile family directories: %w", err)
	}
	for _, id := range fixed {
		c.logger.Info("finished interrupted family move",
			logging.Family(id),
			logging.String(logging.FieldEventType, "family_reconciled"),
		)
	}

	claimed, err := c.store.Entries(ctx, queue.PfamIn)
	if err != nil {
		return err
	}
	for _, entry := range claimed {
		if _, err := c.store.PushTail(ctx, queue.LiftoverDone, entry.Family); err != nil {
			return err
		}
		if _, err := c.store.Remove(ctx, queue.PfamIn, entry.Family); err != nil {
			return err
		}
		c.logger.Info("released stale build claim",
			logging.Family(entry.Family),
			logging.String(logging.FieldEventType, "claim_released"),
		)
	}

	recovery, err := RequeueActive(ctx, c.store, c.pipe.Layout())
	if err != nil {
		return fmt.Errorf("requeue active families: %w", err)
	}
	for list, ids := range recovery.Requeued {
		c.logger.Info("requeued families missing from the work lists",
			logging.String("list", string(list)),
			logging.Strings("families", ids),
			logging.String(logging.FieldEventType, "families_requeued"),
		)
	}
	for _, id := range recovery.Stranded {
		logging.WarnWithContext(c.logger, "active family cannot be polled", "family_stranded",
			logging.Family(id),
			logging.String(logging.FieldErrorHint, "rebuild it with famforge build or file it with famforge family set"),
			logging.String(logging.FieldImpact, "family stays in the active root"),
		)
	}
	return nil
}

func (c *Coordinator) watchQueued(ctx context.Context) {
	for _, list := range []queue.List{queue.LiftoverIn, queue.LiftoverDone} {
		entries, err := c.store.Entries(ctx, list)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			c.watch(entry.Family)
		}
	}
}

func (c *Coordinator) watch(id string) {
	if c.waker != nil {
		c.waker.watch(id)
	}
}

func (c *Coordinator) unwatch(id string) {
	if c.waker != nil {
		c.waker.unwatch(id)
	}
}

func (c *Coordinator) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (c *Coordinator) wakeAll() {
	c.signal(c.liftoverWake)
	c.signal(c.buildWake)
}
