package batch

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
	"github.com/Simplereally/bloomstudio-sub005/internal/generation"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/progress"
)

// Executor runs one fully-resolved generation item. Implemented by
// generation.Executor; tests substitute fakes.
type Executor interface {
	Execute(ctx context.Context, item generation.Item) (*domain.Artifact, error)
}

// DriverConfig tunes the stepping loop.
type DriverConfig struct {
	// Lease is how long a claim keeps other drivers away from a job. It
	// must comfortably exceed one generation call.
	Lease time.Duration
	// PollInterval is the idle sleep when no job is due.
	PollInterval time.Duration
	// MaxAttempts bounds retries per item; exhausting it converts a
	// retryable failure into a permanent one.
	MaxAttempts int
	Backoff     BackoffConfig
}

// DefaultDriverConfig returns production settings.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Lease:        5 * time.Minute,
		PollInterval: 2 * time.Second,
		MaxAttempts:  3,
		Backoff:      DefaultBackoff(),
	}
}

// Driver advances batch jobs one item at a time. It holds no job state of its
// own: every step claims a fresh row, acts on it, and persists the outcome,
// which is what makes stepping safe to repeat across restarts and duplicate
// claims. At most one step runs per job at a time (claim lease), so item
// order within a batch is strictly increasing.
type Driver struct {
	repo   domain.BatchRepository
	exec   Executor
	broker *progress.Broker
	logger infra.Logger
	cfg    DriverConfig

	randSeed  func() int64
	randFloat func() float64
	now       func() time.Time
}

func NewDriver(repo domain.BatchRepository, exec Executor, broker *progress.Broker, logger infra.Logger, cfg DriverConfig) *Driver {
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Driver{
		repo:      repo,
		exec:      exec,
		broker:    broker,
		logger:    logger,
		cfg:       cfg,
		randSeed:  rand.Int63,
		randFloat: rand.Float64,
		now:       time.Now,
	}
}

// Run claims and steps due jobs until ctx is cancelled. An in-flight step is
// allowed to finish; cancellation is observed between steps.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info().Msg("driver: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stepped, err := d.RunStep(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			d.logger.Error().Err(err).Msg("driver: step failed")
		}
		if !stepped {
			select {
			case <-time.After(d.cfg.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// RunStep claims at most one due job and advances it by one item. It reports
// whether any job was due. Re-invoking it against a job that has meanwhile
// been paused, cancelled, or finished is a safe no-op: paused and terminal
// jobs are never claimed, and a stale outcome patch is rejected by the store.
func (d *Driver) RunStep(ctx context.Context) (bool, error) {
	job, err := d.repo.ClaimDue(ctx, d.cfg.Lease)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, d.step(ctx, job)
}

func (d *Driver) step(ctx context.Context, job *domain.BatchJob) error {
	if job.Exhausted() {
		return d.finalize(ctx, job)
	}

	item := generation.Item{
		JobID:     job.ID,
		OwnerID:   job.OwnerID,
		ItemIndex: job.CurrentIndex,
		Seed:      generation.ResolveSeed(job.Params, d.randSeed),
		Params:    job.Params,
	}

	d.logger.Debug().
		Str("job_id", job.ID).
		Int("item_index", item.ItemIndex).
		Int("attempt", job.Attempt).
		Msg("driver: executing item")

	artifact, execErr := d.exec.Execute(ctx, item)
	if execErr == nil {
		return d.recordSuccess(ctx, job, artifact)
	}

	// A shutdown mid-call is not an item outcome: leave the row untouched
	// and let the lease expire so the item is re-attempted.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if generation.IsRetryable(execErr) && job.Attempt+1 < d.cfg.MaxAttempts {
		return d.reschedule(ctx, job, execErr)
	}
	return d.recordFailure(ctx, job, execErr)
}

func (d *Driver) recordSuccess(ctx context.Context, job *domain.BatchJob, artifact *domain.Artifact) error {
	updated, err := d.repo.RecordSuccess(ctx, job.ID, job.CurrentIndex, artifact)
	if err != nil {
		return d.ignoreStale(job, err, "record success")
	}
	d.publish(updated)
	d.logger.Info().
		Str("job_id", job.ID).
		Int("item_index", job.CurrentIndex).
		Str("artifact_id", artifact.ID).
		Msg("driver: item completed")
	return d.maybeFinalize(ctx, updated)
}

func (d *Driver) recordFailure(ctx context.Context, job *domain.BatchJob, execErr error) error {
	reason := generation.FailureReason(execErr)
	updated, err := d.repo.RecordFailure(ctx, job.ID, job.CurrentIndex, reason)
	if err != nil {
		return d.ignoreStale(job, err, "record failure")
	}
	d.publish(updated)
	d.logger.Warn().
		Str("job_id", job.ID).
		Int("item_index", job.CurrentIndex).
		Str("reason", reason).
		Msg("driver: item failed")
	return d.maybeFinalize(ctx, updated)
}

func (d *Driver) reschedule(ctx context.Context, job *domain.BatchJob, execErr error) error {
	attempt := job.Attempt + 1
	delay := d.cfg.Backoff.Delay(job.Attempt, d.randFloat)
	updated, err := d.repo.Reschedule(ctx, job.ID, job.CurrentIndex, attempt, d.now().UTC().Add(delay))
	if err != nil {
		return d.ignoreStale(job, err, "reschedule")
	}
	d.publish(updated)
	d.logger.Warn().
		Str("job_id", job.ID).
		Int("item_index", job.CurrentIndex).
		Int("attempt", attempt).
		Dur("delay", delay).
		Err(execErr).
		Msg("driver: retrying item")
	return nil
}

// maybeFinalize settles the job when the recorded outcome exhausted the batch
// and the job is still processing. Jobs paused or cancelled mid-flight keep
// their status; a paused exhausted job settles on resume.
func (d *Driver) maybeFinalize(ctx context.Context, job *domain.BatchJob) error {
	if !job.Exhausted() || job.Status != domain.BatchStatusProcessing {
		return nil
	}
	return d.finalize(ctx, job)
}

func (d *Driver) finalize(ctx context.Context, job *domain.BatchJob) error {
	final, err := d.repo.Finalize(ctx, job.ID, job.TerminalStatus())
	if err != nil {
		return d.ignoreStale(job, err, "finalize")
	}
	d.publish(final)
	d.logger.Info().
		Str("job_id", final.ID).
		Str("status", string(final.Status)).
		Int("completed", final.CompletedCount).
		Int("failed", final.FailedCount).
		Msg("driver: batch settled")
	return nil
}

// ignoreStale swallows a patch rejected because the job changed under the
// step (pause, cancel, duplicate claim). The next claim will observe the
// current row; nothing was lost.
func (d *Driver) ignoreStale(job *domain.BatchJob, err error, op string) error {
	if errors.Is(err, domain.ErrInvalidTransition) {
		d.logger.Debug().
			Str("job_id", job.ID).
			Str("op", op).
			Msg("driver: patch superseded, skipping")
		return nil
	}
	return err
}

func (d *Driver) publish(job *domain.BatchJob) {
	if d.broker != nil {
		d.broker.Publish(job)
	}
}
