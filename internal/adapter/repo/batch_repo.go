package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/sqlinline"
)

// BatchRepositoryPG implements domain.BatchRepository and
// domain.ArtifactRepository on PostgreSQL. Every patch is a single guarded
// UPDATE: the WHERE clause encodes the transition rules, so a patch that
// matches zero rows on an existing job is an invalid transition, never a
// silent overwrite.
type BatchRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewBatchRepository creates a new batch repository backed by PostgreSQL.
func NewBatchRepository(sql infra.SQLExecutor) *BatchRepositoryPG {
	return &BatchRepositoryPG{sql: sql}
}

// Create inserts a new batch job record.
func (r *BatchRepositoryPG) Create(ctx context.Context, job *domain.BatchJob) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QCreateBatch, job.ID, job.OwnerID, job.TotalCount, params)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	job.Status = domain.BatchStatusPending
	return nil
}

// GetByID fetches a job by its identifier. An empty ownerID skips the
// ownership check; the driver reads jobs that way.
func (r *BatchRepositoryPG) GetByID(ctx context.Context, jobID, ownerID string) (*domain.BatchJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QGetBatch, jobID)
	job, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return nil, domain.ErrNotAuthorized
	}
	return job, nil
}

// ListActive returns every non-terminal job belonging to ownerID, newest first.
func (r *BatchRepositoryPG) ListActive(ctx context.Context, ownerID string) ([]domain.BatchJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListActiveBatches, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.BatchJob
	for rows.Next() {
		job, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// SetStatus applies a caller-driven transition. The from set encodes which
// states permit the move; everything else, including all terminal states,
// fails with ErrInvalidTransition.
func (r *BatchRepositoryPG) SetStatus(ctx context.Context, jobID, ownerID string, from []domain.BatchStatus, to domain.BatchStatus) (*domain.BatchJob, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSetBatchStatus, jobID, ownerID, string(to), time.Now().UTC(), fromStr)
	job, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, r.classifyMiss(ctx, jobID, ownerID)
		}
		return nil, err
	}
	return job, nil
}

// ClaimDue leases the next due job for one driver step.
func (r *BatchRepositoryPG) ClaimDue(ctx context.Context, lease time.Duration) (*domain.BatchJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QClaimDueBatch, lease.Seconds())
	job, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// RecordSuccess counts one completed item and appends its artifact in a
// single statement against the job row.
func (r *BatchRepositoryPG) RecordSuccess(ctx context.Context, jobID string, itemIndex int, artifact *domain.Artifact) (*domain.BatchJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QRecordBatchSuccess,
		jobID,
		itemIndex,
		artifact.ID,
		artifact.StorageKey,
		artifact.Format,
		artifact.Width,
		artifact.Height,
		artifact.Seed,
		artifact.SizeBytes,
	)
	job, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrInvalidTransition
		}
		return nil, err
	}
	// The statement's artifact aggregate predates its own insert.
	job.ArtifactIDs = append(job.ArtifactIDs, artifact.ID)
	return job, nil
}

// RecordFailure counts one permanently failed item and advances past it.
func (r *BatchRepositoryPG) RecordFailure(ctx context.Context, jobID string, itemIndex int, reason string) (*domain.BatchJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QRecordBatchFailure, jobID, itemIndex, reason)
	job, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrInvalidTransition
		}
		return nil, err
	}
	return job, nil
}

// Reschedule defers the next attempt at the same item.
func (r *BatchRepositoryPG) Reschedule(ctx context.Context, jobID string, itemIndex, attempt int, runAt time.Time) (*domain.BatchJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QRescheduleBatch, jobID, itemIndex, attempt, runAt.UTC())
	job, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrInvalidTransition
		}
		return nil, err
	}
	return job, nil
}

// Finalize settles an exhausted processing job into its terminal status.
func (r *BatchRepositoryPG) Finalize(ctx context.Context, jobID string, to domain.BatchStatus) (*domain.BatchJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QFinalizeBatch, jobID, string(to))
	job, err := scanBatch(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrInvalidTransition
		}
		return nil, err
	}
	return job, nil
}

// ListByJobID returns the artifacts for one job in item order. Ownership is
// expected to have been checked against the job row by the caller.
func (r *BatchRepositoryPG) ListByJobID(ctx context.Context, jobID, ownerID string) ([]domain.Artifact, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListBatchArtifacts, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		if ownerID != "" && artifact.OwnerID != ownerID {
			return nil, domain.ErrNotAuthorized
		}
		artifacts = append(artifacts, *artifact)
	}
	return artifacts, rows.Err()
}

// GetArtifact fetches a single artifact scoped to its owner.
func (r *BatchRepositoryPG) GetArtifact(ctx context.Context, artifactID, ownerID string) (*domain.Artifact, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QGetArtifact, artifactID)
	artifact, err := scanArtifact(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if ownerID != "" && artifact.OwnerID != ownerID {
		return nil, domain.ErrNotAuthorized
	}
	return artifact, nil
}

// classifyMiss turns a zero-row guarded update into the precise caller error.
func (r *BatchRepositoryPG) classifyMiss(ctx context.Context, jobID, ownerID string) error {
	if _, err := r.GetByID(ctx, jobID, ownerID); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*domain.BatchJob, error) {
	var (
		job    domain.BatchJob
		status string
		params []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&job.TotalCount,
		&job.CompletedCount,
		&job.FailedCount,
		&job.CurrentIndex,
		&job.Attempt,
		&params,
		&job.ErrorMessage,
		&job.NextRunAt,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ArtifactIDs,
	); err != nil {
		return nil, err
	}
	job.Status = domain.BatchStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	return &job, nil
}

func scanArtifact(row scannable) (*domain.Artifact, error) {
	var artifact domain.Artifact
	if err := row.Scan(
		&artifact.ID,
		&artifact.JobID,
		&artifact.OwnerID,
		&artifact.ItemIndex,
		&artifact.StorageKey,
		&artifact.Format,
		&artifact.Width,
		&artifact.Height,
		&artifact.Seed,
		&artifact.SizeBytes,
		&artifact.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &artifact, nil
}

var (
	_ domain.BatchRepository    = (*BatchRepositoryPG)(nil)
	_ domain.ArtifactRepository = (*BatchRepositoryPG)(nil)
	_ scannable                 = (pgx.Row)(nil)
)
