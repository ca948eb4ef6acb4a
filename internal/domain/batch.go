package domain

import "time"

// BatchStatus enumerates batch job lifecycle states.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusPaused     BatchStatus = "paused"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusCancelled, BatchStatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusPaused,
		BatchStatusCompleted, BatchStatusCancelled, BatchStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// The driver owns pending→processing and the moves into completed/failed;
// the control API owns pause, resume, and cancel.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case BatchStatusProcessing:
		return s == BatchStatusPending || s == BatchStatusPaused || s == BatchStatusProcessing
	case BatchStatusPaused:
		// Pausing before the first step is allowed; the batch simply never
		// starts until resumed.
		return s == BatchStatusPending || s == BatchStatusProcessing
	case BatchStatusCancelled:
		return s == BatchStatusPending || s == BatchStatusProcessing || s == BatchStatusPaused
	case BatchStatusCompleted, BatchStatusFailed:
		return s == BatchStatusProcessing
	}
	return false
}

// GenerationParams is the immutable template shared by every item in a batch.
// A nil Seed means each item draws a fresh random seed.
type GenerationParams struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
}

// BatchJob is the durable record of one batch generation request. It is the
// single source of truth for progress: the driver holds no state between
// steps and always reads the row fresh.
type BatchJob struct {
	ID             string
	OwnerID        string
	Status         BatchStatus
	TotalCount     int
	CompletedCount int
	FailedCount    int
	CurrentIndex   int
	Attempt        int
	Params         GenerationParams
	ArtifactIDs    []string
	ErrorMessage   string
	NextRunAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the number of items not yet attempted.
func (j *BatchJob) Remaining() int {
	if j.CurrentIndex >= j.TotalCount {
		return 0
	}
	return j.TotalCount - j.CurrentIndex
}

// Exhausted reports whether every item has been attempted.
func (j *BatchJob) Exhausted() bool {
	return j.CurrentIndex >= j.TotalCount
}

// TerminalStatus returns the status an exhausted batch should settle into.
// A batch where every single item failed is failed; anything else, including
// partial failure, is completed.
func (j *BatchJob) TerminalStatus() BatchStatus {
	if j.FailedCount >= j.TotalCount {
		return BatchStatusFailed
	}
	return BatchStatusCompleted
}
