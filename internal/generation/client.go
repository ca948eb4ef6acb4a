package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

// ClientOptions configures the upstream generation gateway client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client calls the external generation gateway. One call produces exactly one
// image; batching is the driver's concern, not the gateway's.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

func NewClient(opts ClientOptions) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.bloomstudio.dev/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "bloom-diffusion-xl"
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

// Model returns the configured default model identifier.
func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Seed           int64  `json:"seed"`
}

type generateResponse struct {
	Image struct {
		B64    string `json:"b64"`
		Format string `json:"format"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"image"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Upstream error codes that no amount of retrying will fix.
var permanentCodes = map[string]struct{}{
	"invalid_prompt":           {},
	"invalid_parameters":       {},
	"content_policy_violation": {},
	"model_not_found":          {},
}

// Generate performs one generation call for the given item.
func (c *Client) Generate(ctx context.Context, item Item) (*Output, error) {
	if c == nil {
		return nil, &Error{Message: "client not configured"}
	}
	if c.token == "" {
		return nil, &Error{Message: "gateway API key is missing"}
	}
	payload := buildRequest(c.model, item)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("encode request: %v", err)}
	}

	endpoint := c.baseURL + "/images/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Retryable: true, Message: fmt.Sprintf("gateway unreachable: %v", err)}
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, classifyHTTP(resp.StatusCode, "")
		}
		return nil, &Error{Retryable: true, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classifyHTTP(resp.StatusCode, upstreamMessage(out))
	}
	if out.Code != "" {
		return nil, classifyCode(out.Code, out.Message)
	}
	if out.Image.B64 == "" {
		return nil, &Error{Retryable: true, Message: "gateway returned empty image"}
	}
	data, err := base64.StdEncoding.DecodeString(out.Image.B64)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("decode image payload: %v", err)}
	}
	format := out.Image.Format
	if format == "" {
		format = "image/png"
	}
	return &Output{
		Data:   data,
		Format: format,
		Width:  out.Image.Width,
		Height: out.Image.Height,
	}, nil
}

func buildRequest(defaultModel string, item Item) generateRequest {
	model := strings.TrimSpace(item.Params.Model)
	if model == "" {
		model = defaultModel
	}
	return generateRequest{
		Model:          model,
		Prompt:         item.Params.Prompt,
		NegativePrompt: item.Params.NegativePrompt,
		AspectRatio:    item.Params.AspectRatio,
		Quality:        item.Params.Quality,
		Seed:           item.Seed,
	}
}

func classifyHTTP(status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("gateway http %d", status)
	}
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return &Error{Retryable: true, Message: message}
	default:
		return &Error{Message: message}
	}
}

func classifyCode(code, message string) *Error {
	if message == "" {
		message = code
	}
	if _, permanent := permanentCodes[code]; permanent {
		return &Error{Message: message}
	}
	return &Error{Retryable: true, Message: message}
}

func upstreamMessage(out generateResponse) string {
	if out.Message != "" && out.Code != "" {
		return fmt.Sprintf("%s (%s)", out.Message, out.Code)
	}
	if out.Message != "" {
		return out.Message
	}
	return out.Code
}

var _ Generator = (*Client)(nil)

// Generator is the contract implemented by the gateway client.
type Generator interface {
	Generate(ctx context.Context, item Item) (*Output, error)
}

// ResolveSeed picks the effective seed for one item: the template's fixed
// seed if set, a fresh random one otherwise.
func ResolveSeed(params domain.GenerationParams, random func() int64) int64 {
	if params.Seed != nil {
		return *params.Seed
	}
	return random()
}
