package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

type batchStartRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Model          string `json:"model"`
	AspectRatio    string `json:"aspect_ratio"`
	Quality        string `json:"quality"`
	Seed           *int64 `json:"seed"`
	// Count is a pointer so an absent field defaults to one item while an
	// explicit zero or negative value still reaches validation.
	Count *int `json:"count"`
}

type batchJobDTO struct {
	ID             string                  `json:"id"`
	Status         string                  `json:"status"`
	TotalCount     int                     `json:"total_count"`
	CompletedCount int                     `json:"completed_count"`
	FailedCount    int                     `json:"failed_count"`
	CurrentIndex   int                     `json:"current_index"`
	ArtifactIDs    []string                `json:"artifact_ids"`
	ErrorMessage   string                  `json:"error_message,omitempty"`
	Params         domain.GenerationParams `json:"params"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

func batchToDTO(job *domain.BatchJob) batchJobDTO {
	ids := job.ArtifactIDs
	if ids == nil {
		ids = []string{}
	}
	return batchJobDTO{
		ID:             job.ID,
		Status:         string(job.Status),
		TotalCount:     job.TotalCount,
		CompletedCount: job.CompletedCount,
		FailedCount:    job.FailedCount,
		CurrentIndex:   job.CurrentIndex,
		ArtifactIDs:    ids,
		ErrorMessage:   job.ErrorMessage,
		Params:         job.Params,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

type artifactDTO struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	ItemIndex int       `json:"item_index"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Seed      int64     `json:"seed"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func artifactToDTO(a domain.Artifact) artifactDTO {
	return artifactDTO{
		ID:        a.ID,
		JobID:     a.JobID,
		ItemIndex: a.ItemIndex,
		Format:    a.Format,
		Width:     a.Width,
		Height:    a.Height,
		Seed:      a.Seed,
		SizeBytes: a.SizeBytes,
		CreatedAt: a.CreatedAt,
	}
}

func (a *App) BatchStart(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req batchStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}
	params := domain.GenerationParams{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		AspectRatio:    req.AspectRatio,
		Quality:        req.Quality,
		Seed:           req.Seed,
	}
	job, err := a.Service.Start(r.Context(), userID, params, count)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, batchToDTO(job))
}

func (a *App) BatchGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Service.Get(r.Context(), chi.URLParam(r, "batch_id"), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, batchToDTO(job))
}

func (a *App) BatchList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs, err := a.Service.ListActive(r.Context(), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	dtos := make([]batchJobDTO, 0, len(jobs))
	for i := range jobs {
		dtos = append(dtos, batchToDTO(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"batches": dtos})
}

func (a *App) BatchPause(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.Service.Pause)
}

func (a *App) BatchResume(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.Service.Resume)
}

func (a *App) BatchCancel(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.Service.Cancel)
}

func (a *App) control(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, jobID, ownerID string) (*domain.BatchJob, error)) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := op(r.Context(), chi.URLParam(r, "batch_id"), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, batchToDTO(job))
}

func (a *App) BatchArtifacts(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	artifacts, err := a.Service.Artifacts(r.Context(), chi.URLParam(r, "batch_id"), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	dtos := make([]artifactDTO, 0, len(artifacts))
	for _, art := range artifacts {
		dtos = append(dtos, artifactToDTO(art))
	}
	a.json(w, http.StatusOK, map[string]any{"artifacts": dtos})
}

func (a *App) ArtifactDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	artifact, err := a.Service.Artifact(r.Context(), chi.URLParam(r, "artifact_id"), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	data, err := a.Store.Read(r.Context(), artifact.StorageKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("artifact_id", artifact.ID).Msg("artifact blob missing")
		a.error(w, http.StatusNotFound, "not_found", "artifact data unavailable")
		return
	}
	if artifact.Format != "" {
		w.Header().Set("Content-Type", artifact.Format)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
