package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Simplereally/bloomstudio-sub005/internal/adapter/repo"
	"github.com/Simplereally/bloomstudio-sub005/internal/batch"
	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
	"github.com/Simplereally/bloomstudio-sub005/internal/http/handlers"
	"github.com/Simplereally/bloomstudio-sub005/internal/http/httpapi"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/middleware"
	"github.com/Simplereally/bloomstudio-sub005/internal/progress"
	"github.com/Simplereally/bloomstudio-sub005/internal/storage"
)

const testSecret = "test-secret"

type testEnv struct {
	handler http.Handler
	repo    *repo.MemoryRepository
	store   *storage.FileStore
	svc     *batch.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := repo.NewMemoryRepository()
	broker := progress.NewBroker()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	logger := zerolog.Nop()
	svc := batch.NewService(mem, mem, broker, logger)
	app := handlers.NewApp(svc, broker, store, logger, testSecret)
	cfg := &infra.Config{
		JWTSecret:       testSecret,
		RateLimitPerMin: 1000,
		CORSOrigins:     []string{"http://localhost:3000"},
	}
	return &testEnv{
		handler: httpapi.NewRouter(app, cfg, logger),
		repo:    mem,
		store:   store,
		svc:     svc,
	}
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{
		Sub: userID,
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("Authorization", bearerToken(t, userID))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBatch(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBatchStartRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/batches", "", map[string]any{"prompt": "cat", "count": 3})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBatchStartAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "a red fox", "count": 3})
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decodeBatch(t, rec)
	require.Equal(t, "pending", created["status"])
	require.EqualValues(t, 3, created["total_count"])
	jobID := created["id"].(string)
	require.NotEmpty(t, jobID)

	rec = env.do(t, http.MethodGet, "/v1/batches/"+jobID, "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBatch(t, rec)
	require.Equal(t, jobID, got["id"])

	// Another user cannot see the batch.
	rec = env.do(t, http.MethodGet, "/v1/batches/"+jobID, "intruder", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/batches/does-not-exist", "user-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchStartValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "", "count": 2})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "cat", "count": batch.MaxBatchSize + 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// An explicit nonpositive count is rejected, not coerced to one.
	rec = env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "cat", "count": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "cat", "count": -5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchStartDefaultsCountWhenAbsent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "cat"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.EqualValues(t, 1, decodeBatch(t, rec)["total_count"])
}

func TestBatchControlFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "cat", "count": 2})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBatch(t, rec)["id"].(string)

	rec = env.do(t, http.MethodPost, "/v1/batches/"+jobID+"/pause", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "paused", decodeBatch(t, rec)["status"])

	// Pausing twice conflicts.
	rec = env.do(t, http.MethodPost, "/v1/batches/"+jobID+"/pause", "user-1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/batches/"+jobID+"/resume", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "processing", decodeBatch(t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/v1/batches/"+jobID+"/cancel", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", decodeBatch(t, rec)["status"])

	// Cancelled is terminal.
	rec = env.do(t, http.MethodPost, "/v1/batches/"+jobID+"/resume", "user-1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestBatchListActive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "cat", "count": 1})
	require.Equal(t, http.StatusAccepted, rec.Code)
	first := decodeBatch(t, rec)["id"].(string)
	rec = env.do(t, http.MethodPost, "/v1/batches", "user-1", map[string]any{"prompt": "dog", "count": 1})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/batches/"+first+"/cancel", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/batches", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Batches []map[string]any `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Batches, 1)
}

func TestArtifactDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Start(ctx, "user-1", domain.GenerationParams{Prompt: "cat"}, 1)
	require.NoError(t, err)

	key := storage.ArtifactKey(job.ID, 0, "image/png")
	_, err = env.store.Write(ctx, key, []byte("png-bytes"))
	require.NoError(t, err)

	claimed, err := env.repo.ClaimDue(ctx, time.Minute)
	require.NoError(t, err)
	artifact := &domain.Artifact{
		ID:         "art-1",
		JobID:      job.ID,
		OwnerID:    "user-1",
		ItemIndex:  0,
		StorageKey: key,
		Format:     "image/png",
		SizeBytes:  int64(len("png-bytes")),
	}
	_, err = env.repo.RecordSuccess(ctx, claimed.ID, 0, artifact)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/v1/artifacts/art-1/download", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, "png-bytes", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/artifacts/art-1/download", "intruder", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Batch artifact listing includes the stored artifact.
	rec = env.do(t, http.MethodGet, "/v1/batches/"+job.ID+"/artifacts", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Artifacts []map[string]any `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Artifacts, 1)
	require.Equal(t, "art-1", listed.Artifacts[0]["id"])
}
