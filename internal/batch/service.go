package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/progress"
)

// MaxBatchSize caps how many items one batch may request.
const MaxBatchSize = 50

// Service exposes the batch control operations: start, pause, resume,
// cancel, and the owner-scoped reads. Each control call is one guarded
// status patch; the store's transition rules do the enforcement, so races
// between concurrent callers and the driver settle on whichever patch lands
// first.
type Service struct {
	repo      domain.BatchRepository
	artifacts domain.ArtifactRepository
	broker    *progress.Broker
	logger    infra.Logger
}

func NewService(repo domain.BatchRepository, artifacts domain.ArtifactRepository, broker *progress.Broker, logger infra.Logger) *Service {
	return &Service{repo: repo, artifacts: artifacts, broker: broker, logger: logger}
}

// Start validates the request and creates a pending batch. The new row is
// immediately due, which is all the scheduling trigger the claim loop needs.
// Start returns as soon as the row exists; it never waits for items.
func (s *Service) Start(ctx context.Context, ownerID string, params domain.GenerationParams, count int) (*domain.BatchJob, error) {
	if ownerID == "" {
		return nil, domain.ErrNotAuthorized
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: count must be at least 1", domain.ErrValidation)
	}
	if count > MaxBatchSize {
		return nil, fmt.Errorf("%w: count must be at most %d", domain.ErrValidation, MaxBatchSize)
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}

	job := &domain.BatchJob{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		TotalCount: count,
		Params:     params,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	s.publish(job)
	s.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", ownerID).
		Int("total", count).
		Msg("batch: started")
	return job, nil
}

// Pause stops a batch from advancing. The in-flight item, if any, still
// finishes and is recorded. Pausing a batch that has not stepped yet is
// allowed; it simply never starts until resumed.
func (s *Service) Pause(ctx context.Context, jobID, ownerID string) (*domain.BatchJob, error) {
	job, err := s.repo.SetStatus(ctx, jobID, ownerID,
		[]domain.BatchStatus{domain.BatchStatusPending, domain.BatchStatusProcessing},
		domain.BatchStatusPaused)
	if err != nil {
		return nil, err
	}
	s.publish(job)
	s.logger.Info().Str("job_id", jobID).Msg("batch: paused")
	return job, nil
}

// Resume picks a paused batch back up at its persisted index. No item
// already counted is re-attempted.
func (s *Service) Resume(ctx context.Context, jobID, ownerID string) (*domain.BatchJob, error) {
	job, err := s.repo.SetStatus(ctx, jobID, ownerID,
		[]domain.BatchStatus{domain.BatchStatusPaused},
		domain.BatchStatusProcessing)
	if err != nil {
		return nil, err
	}
	s.publish(job)
	s.logger.Info().Str("job_id", jobID).Int("current_index", job.CurrentIndex).Msg("batch: resumed")
	return job, nil
}

// Cancel terminates a batch. Like pause it never aborts an in-flight item;
// unlike pause there is no way back.
func (s *Service) Cancel(ctx context.Context, jobID, ownerID string) (*domain.BatchJob, error) {
	job, err := s.repo.SetStatus(ctx, jobID, ownerID,
		[]domain.BatchStatus{domain.BatchStatusPending, domain.BatchStatusProcessing, domain.BatchStatusPaused},
		domain.BatchStatusCancelled)
	if err != nil {
		return nil, err
	}
	s.publish(job)
	s.logger.Info().Str("job_id", jobID).Msg("batch: cancelled")
	return job, nil
}

// Get returns the current row for one owned batch.
func (s *Service) Get(ctx context.Context, jobID, ownerID string) (*domain.BatchJob, error) {
	return s.repo.GetByID(ctx, jobID, ownerID)
}

// ListActive returns the owner's non-terminal batches, newest first.
func (s *Service) ListActive(ctx context.Context, ownerID string) ([]domain.BatchJob, error) {
	return s.repo.ListActive(ctx, ownerID)
}

// Artifacts returns the batch's artifacts in item order.
func (s *Service) Artifacts(ctx context.Context, jobID, ownerID string) ([]domain.Artifact, error) {
	if _, err := s.repo.GetByID(ctx, jobID, ownerID); err != nil {
		return nil, err
	}
	return s.artifacts.ListByJobID(ctx, jobID, ownerID)
}

// Artifact returns one owned artifact.
func (s *Service) Artifact(ctx context.Context, artifactID, ownerID string) (*domain.Artifact, error) {
	return s.artifacts.GetArtifact(ctx, artifactID, ownerID)
}

func (s *Service) publish(job *domain.BatchJob) {
	if s.broker != nil {
		s.broker.Publish(job)
	}
}
