package generation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
	"github.com/Simplereally/bloomstudio-sub005/internal/storage"
)

type stubGateway struct {
	out *Output
	err error
}

func (s *stubGateway) Generate(ctx context.Context, item Item) (*Output, error) {
	return s.out, s.err
}

func TestExecutorPersistsBeforeReturning(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	gateway := &stubGateway{out: &Output{Data: []byte("img"), Format: "image/png", Width: 512, Height: 512}}
	exec := NewExecutor(gateway, store, zerolog.Nop())

	item := Item{JobID: "job-1", OwnerID: "user-1", ItemIndex: 2, Seed: 5, Params: domain.GenerationParams{Prompt: "cat"}}
	artifact, err := exec.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if artifact.StorageKey != "generated/job-1/item-002.png" {
		t.Fatalf("unexpected storage key: %s", artifact.StorageKey)
	}
	if artifact.Seed != 5 || artifact.ItemIndex != 2 || artifact.OwnerID != "user-1" {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}
	data, err := store.Read(context.Background(), artifact.StorageKey)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "img" {
		t.Fatalf("artifact bytes not durable: %q", data)
	}
}

func TestExecutorPassesThroughGatewayError(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	gateway := &stubGateway{err: &Error{Retryable: true, Message: "upstream busy"}}
	exec := NewExecutor(gateway, store, zerolog.Nop())

	_, err = exec.Execute(context.Background(), Item{JobID: "job-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
