package generation

import (
	"errors"
	"fmt"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

// Item is the fully-resolved unit of work for one batch index: the shared
// template plus the per-item seed. No placeholders remain at this point.
type Item struct {
	JobID     string
	OwnerID   string
	ItemIndex int
	Seed      int64
	Params    domain.GenerationParams
}

// Output is the raw result returned by the upstream generation service.
type Output struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Error describes a failed generation attempt. Retryable failures (transient
// upstream errors, timeouts) are retried by the driver; non-retryable ones
// (validation errors, policy violations) are recorded and skipped.
type Error struct {
	Retryable bool
	Message   string
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("generation failed (%s): %s", kind, e.Message)
}

// IsRetryable reports whether err is a generation error worth retrying.
func IsRetryable(err error) bool {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Retryable
	}
	return false
}

// FailureReason extracts a short human-readable reason from a generation error.
func FailureReason(err error) string {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Message
	}
	return err.Error()
}
