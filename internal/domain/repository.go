package domain

import (
	"context"
	"time"
)

// BatchRepository defines persistence for batch jobs. Every mutation is a
// single-row atomic patch. Reads and status changes taken on behalf of a
// caller are scoped to the owning principal; driver-side patches are not,
// since the driver only ever acts on jobs it has claimed.
type BatchRepository interface {
	Create(ctx context.Context, job *BatchJob) error
	GetByID(ctx context.Context, jobID, ownerID string) (*BatchJob, error)
	ListActive(ctx context.Context, ownerID string) ([]BatchJob, error)

	// SetStatus moves a job from one of the given states to the target
	// state. Fails with ErrInvalidTransition when the current status is
	// not in from, which also covers every terminal state.
	SetStatus(ctx context.Context, jobID, ownerID string, from []BatchStatus, to BatchStatus) (*BatchJob, error)

	// ClaimDue returns one job due for a driver step and leases it for
	// the given duration so no other driver picks it up meanwhile. A
	// pending job is flipped to processing by the claim. Returns
	// ErrNotFound when nothing is due.
	ClaimDue(ctx context.Context, lease time.Duration) (*BatchJob, error)

	// RecordSuccess counts the item at itemIndex as completed, appends
	// the artifact, advances the index, resets the attempt counter and
	// makes the job due again immediately. The patch is accepted while
	// the job is processing, paused or cancelled: an in-flight item is
	// allowed to finish and its outcome is recorded even if the job was
	// paused or cancelled under it. Stale patches (itemIndex behind the
	// persisted index) and patches against completed or failed jobs fail
	// with ErrInvalidTransition.
	RecordSuccess(ctx context.Context, jobID string, itemIndex int, artifact *Artifact) (*BatchJob, error)

	// RecordFailure counts the item at itemIndex as failed and advances
	// past it. Same acceptance rules as RecordSuccess.
	RecordFailure(ctx context.Context, jobID string, itemIndex int, reason string) (*BatchJob, error)

	// Reschedule keeps the job on the same item after a retryable
	// failure, bumping the attempt counter and deferring the next step
	// until runAt.
	Reschedule(ctx context.Context, jobID string, itemIndex, attempt int, runAt time.Time) (*BatchJob, error)

	// Finalize settles an exhausted processing job into completed or
	// failed.
	Finalize(ctx context.Context, jobID string, to BatchStatus) (*BatchJob, error)
}

// ArtifactRepository handles read access to generated artifacts.
type ArtifactRepository interface {
	ListByJobID(ctx context.Context, jobID, ownerID string) ([]Artifact, error)
	GetArtifact(ctx context.Context, artifactID, ownerID string) (*Artifact, error)
}
