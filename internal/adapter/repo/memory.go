package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

// MemoryRepository is a thread-safe in-memory twin of BatchRepositoryPG with
// identical guarded-patch semantics. It backs unit tests and single-process
// development runs where PostgreSQL is not available.
type MemoryRepository struct {
	mu            sync.Mutex
	jobs          map[string]*domain.BatchJob
	artifacts     map[string][]domain.Artifact
	artifactsByID map[string]domain.Artifact

	// Now is injectable so tests can control lease and backoff timing.
	Now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs:          make(map[string]*domain.BatchJob),
		artifacts:     make(map[string][]domain.Artifact),
		artifactsByID: make(map[string]domain.Artifact),
		Now:           time.Now,
	}
}

func (m *MemoryRepository) Create(ctx context.Context, job *domain.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now().UTC()
	job.Status = domain.BatchStatusPending
	job.NextRunAt = now
	job.CreatedAt = now
	job.UpdatedAt = now
	m.jobs[job.ID] = clone(job)
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, jobID, ownerID string) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return nil, domain.ErrNotAuthorized
	}
	return clone(job), nil
}

func (m *MemoryRepository) ListActive(ctx context.Context, ownerID string) ([]domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []domain.BatchJob
	for _, job := range m.jobs {
		if job.OwnerID == ownerID && !job.Status.Terminal() {
			jobs = append(jobs, *clone(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

func (m *MemoryRepository) SetStatus(ctx context.Context, jobID, ownerID string, from []domain.BatchStatus, to domain.BatchStatus) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return nil, domain.ErrNotAuthorized
	}
	allowed := false
	for _, s := range from {
		if job.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, domain.ErrInvalidTransition
	}
	now := m.Now().UTC()
	job.Status = to
	job.NextRunAt = now
	job.UpdatedAt = now
	return clone(job), nil
}

func (m *MemoryRepository) ClaimDue(ctx context.Context, lease time.Duration) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now().UTC()
	var due *domain.BatchJob
	for _, job := range m.jobs {
		if job.Status != domain.BatchStatusPending && job.Status != domain.BatchStatusProcessing {
			continue
		}
		if job.NextRunAt.After(now) {
			continue
		}
		if due == nil || job.NextRunAt.Before(due.NextRunAt) {
			due = job
		}
	}
	if due == nil {
		return nil, domain.ErrNotFound
	}
	due.Status = domain.BatchStatusProcessing
	due.NextRunAt = now.Add(lease)
	due.UpdatedAt = now
	return clone(due), nil
}

func (m *MemoryRepository) RecordSuccess(ctx context.Context, jobID string, itemIndex int, artifact *domain.Artifact) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.patchable(jobID, itemIndex)
	if err != nil {
		return nil, err
	}
	now := m.Now().UTC()
	job.CompletedCount++
	job.CurrentIndex++
	job.Attempt = 0
	job.NextRunAt = now
	job.UpdatedAt = now
	job.ArtifactIDs = append(job.ArtifactIDs, artifact.ID)

	stored := *artifact
	stored.CreatedAt = now
	m.artifacts[jobID] = append(m.artifacts[jobID], stored)
	m.artifactsByID[artifact.ID] = stored
	return clone(job), nil
}

func (m *MemoryRepository) RecordFailure(ctx context.Context, jobID string, itemIndex int, reason string) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.patchable(jobID, itemIndex)
	if err != nil {
		return nil, err
	}
	now := m.Now().UTC()
	job.FailedCount++
	job.CurrentIndex++
	job.Attempt = 0
	job.ErrorMessage = reason
	job.NextRunAt = now
	job.UpdatedAt = now
	return clone(job), nil
}

func (m *MemoryRepository) Reschedule(ctx context.Context, jobID string, itemIndex, attempt int, runAt time.Time) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	if job.CurrentIndex != itemIndex {
		return nil, domain.ErrInvalidTransition
	}
	if job.Status != domain.BatchStatusProcessing && job.Status != domain.BatchStatusPaused {
		return nil, domain.ErrInvalidTransition
	}
	job.Attempt = attempt
	job.NextRunAt = runAt.UTC()
	job.UpdatedAt = m.Now().UTC()
	return clone(job), nil
}

func (m *MemoryRepository) Finalize(ctx context.Context, jobID string, to domain.BatchStatus) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	if job.Status != domain.BatchStatusProcessing || job.CurrentIndex < job.TotalCount {
		return nil, domain.ErrInvalidTransition
	}
	job.Status = to
	job.UpdatedAt = m.Now().UTC()
	return clone(job), nil
}

func (m *MemoryRepository) ListByJobID(ctx context.Context, jobID, ownerID string) ([]domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifacts := m.artifacts[jobID]
	out := make([]domain.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if ownerID != "" && a.OwnerID != ownerID {
			return nil, domain.ErrNotAuthorized
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemIndex < out[j].ItemIndex })
	return out, nil
}

func (m *MemoryRepository) GetArtifact(ctx context.Context, artifactID, ownerID string) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifactsByID[artifactID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ownerID != "" && artifact.OwnerID != ownerID {
		return nil, domain.ErrNotAuthorized
	}
	return &artifact, nil
}

// patchable mirrors the guarded UPDATE's WHERE clause for outcome patches:
// the index must still match and the job must not have settled into
// completed or failed. Paused and cancelled still accept the in-flight
// item's outcome.
func (m *MemoryRepository) patchable(jobID string, itemIndex int) (*domain.BatchJob, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	if job.CurrentIndex != itemIndex {
		return nil, domain.ErrInvalidTransition
	}
	switch job.Status {
	case domain.BatchStatusProcessing, domain.BatchStatusPaused, domain.BatchStatusCancelled:
		return job, nil
	}
	return nil, domain.ErrInvalidTransition
}

func clone(job *domain.BatchJob) *domain.BatchJob {
	cp := *job
	cp.ArtifactIDs = append([]string(nil), job.ArtifactIDs...)
	return &cp
}

var (
	_ domain.BatchRepository    = (*MemoryRepository)(nil)
	_ domain.ArtifactRepository = (*MemoryRepository)(nil)
)
