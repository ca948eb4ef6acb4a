package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

func TestBatchEventsTerminalSnapshotClosesStream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Start(ctx, "user-1", domain.GenerationParams{Prompt: "cat"}, 1)
	require.NoError(t, err)
	_, err = env.svc.Cancel(ctx, job.ID, "user-1")
	require.NoError(t, err)

	// A terminal batch yields exactly one snapshot event and the stream ends.
	rec := env.do(t, http.MethodGet, "/v1/batches/"+job.ID+"/events", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.Equal(t, 1, strings.Count(body, "event: batch"))
	require.Contains(t, body, `"status":"cancelled"`)
}

func TestBatchEventsStreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Start(ctx, "user-1", domain.GenerationParams{Prompt: "cat"}, 1)
	require.NoError(t, err)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := env.do(t, http.MethodGet, "/v1/batches/"+job.ID+"/events", "user-1", nil)
		done <- rec
	}()

	// Give the stream a moment to subscribe, then cancel the batch. The
	// service publishes the terminal row, which ends the stream.
	time.Sleep(50 * time.Millisecond)
	_, err = env.svc.Cancel(ctx, job.ID, "user-1")
	require.NoError(t, err)

	// Worst case the handler misses the publish and falls back to its poll
	// ticker, so allow more than one poll interval.
	var rec *httptest.ResponseRecorder
	select {
	case rec = <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("stream did not close after terminal update")
	}

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}

func TestBatchEventsAuthz(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Start(ctx, "user-1", domain.GenerationParams{Prompt: "cat"}, 1)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/v1/batches/"+job.ID+"/events", "intruder", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
