package domain

import "time"

// Artifact is one successfully generated output, persisted to durable
// storage before the producing item is counted as complete.
type Artifact struct {
	ID         string
	JobID      string
	OwnerID    string
	ItemIndex  int
	StorageKey string
	Format     string
	Width      int
	Height     int
	Seed       int64
	SizeBytes  int64
	CreatedAt  time.Time
}
