package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

func testItem() Item {
	return Item{
		JobID:     "job-1",
		OwnerID:   "user-1",
		ItemIndex: 0,
		Seed:      42,
		Params: domain.GenerationParams{
			Prompt:      "a cat in a hat",
			AspectRatio: "1:1",
		},
	}
}

func TestClientGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		var payload generateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload.Model != "bloom-diffusion-xl" {
			t.Fatalf("unexpected model: %s", payload.Model)
		}
		if payload.Prompt != "a cat in a hat" {
			t.Fatalf("unexpected prompt: %s", payload.Prompt)
		}
		if payload.Seed != 42 {
			t.Fatalf("unexpected seed: %d", payload.Seed)
		}
		var resp generateResponse
		resp.Image.B64 = base64.StdEncoding.EncodeToString([]byte("png-bytes"))
		resp.Image.Format = "image/png"
		resp.Image.Width = 1024
		resp.Image.Height = 1024
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{APIKey: "test-key", BaseURL: ts.URL})
	out, err := client.Generate(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if string(out.Data) != "png-bytes" {
		t.Fatalf("unexpected data: %q", out.Data)
	}
	if out.Format != "image/png" || out.Width != 1024 {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestClientMissingKey(t *testing.T) {
	client := NewClient(ClientOptions{})
	if _, err := client.Generate(context.Background(), testItem()); err == nil {
		t.Fatal("expected error when api key missing")
	}
}

func TestClientClassifiesServerErrorRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "upstream_error", "message": "bad gateway"})
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{APIKey: "test-key", BaseURL: ts.URL})
	_, err := client.Generate(context.Background(), testItem())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("5xx should be retryable, got %v", err)
	}
}

func TestClientClassifiesPolicyViolationPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "content_policy_violation", "message": "rejected"})
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{APIKey: "test-key", BaseURL: ts.URL})
	_, err := client.Generate(context.Background(), testItem())
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Fatalf("policy violation should not be retryable, got %v", err)
	}
}

func TestClientClassifiesRateLimitRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{APIKey: "test-key", BaseURL: ts.URL})
	_, err := client.Generate(context.Background(), testItem())
	if !IsRetryable(err) {
		t.Fatalf("429 should be retryable, got %v", err)
	}
}

func TestResolveSeed(t *testing.T) {
	fixed := int64(7)
	params := domain.GenerationParams{Seed: &fixed}
	if got := ResolveSeed(params, func() int64 { return 99 }); got != 7 {
		t.Fatalf("fixed seed ignored: %d", got)
	}
	params.Seed = nil
	if got := ResolveSeed(params, func() int64 { return 99 }); got != 99 {
		t.Fatalf("random seed not drawn: %d", got)
	}
}
