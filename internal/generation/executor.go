package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/storage"
)

// Executor runs one generation call and persists the raw output before
// returning, so callers never have to re-fetch from the ephemeral upstream
// source. It is a pure function of the item: no state survives between calls.
type Executor struct {
	gateway Generator
	store   *storage.FileStore
	logger  infra.Logger
}

func NewExecutor(gateway Generator, store *storage.FileStore, logger infra.Logger) *Executor {
	return &Executor{gateway: gateway, store: store, logger: logger}
}

// Execute generates the artifact for one item. On success the artifact bytes
// are already durable under the returned storage key.
func (e *Executor) Execute(ctx context.Context, item Item) (*domain.Artifact, error) {
	out, err := e.gateway.Generate(ctx, item)
	if err != nil {
		return nil, err
	}

	key := storage.ArtifactKey(item.JobID, item.ItemIndex, out.Format)
	savedKey, err := e.store.Write(ctx, key, out.Data)
	if err != nil {
		// Upstream produced an image but we failed to make it durable.
		// The item did not complete; storage hiccups are worth a retry.
		e.logger.Error().Err(err).
			Str("job_id", item.JobID).
			Int("item_index", item.ItemIndex).
			Msg("executor: persist artifact failed")
		return nil, &Error{Retryable: true, Message: fmt.Sprintf("persist artifact: %v", err)}
	}

	return &domain.Artifact{
		ID:         uuid.NewString(),
		JobID:      item.JobID,
		OwnerID:    item.OwnerID,
		ItemIndex:  item.ItemIndex,
		StorageKey: savedKey,
		Format:     out.Format,
		Width:      out.Width,
		Height:     out.Height,
		Seed:       item.Seed,
		SizeBytes:  int64(len(out.Data)),
		CreatedAt:  time.Now().UTC(),
	}, nil
}
