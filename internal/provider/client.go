// Package provider proxies requests to the upstream LLM and normalizes
// its responses. The proxy fails open: provider outages produce
// fallback content for the caller, never a hard error.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/edtech/ai-gateway/internal/models"
	"github.com/edtech/ai-gateway/internal/policy"
)

const (
	// Name identifies the upstream provider in the service reference table.
	Name = "anthropic"

	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 2048
)

type Client struct {
	apiKey  string
	baseURL string

	// client bounds the whole synchronous call; streamClient only
	// bounds the wait for response headers, since a live stream may
	// legitimately run longer than any fixed call timeout. Stream
	// reads are cancelled through the request context instead.
	client       *http.Client
	streamClient *http.Client
}

func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		streamClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

// Configured reports whether a provider credential is present. Without
// one, every call serves deterministic canned content.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Request is one normalized provider invocation.
type Request struct {
	System    string
	Messages  []models.Message
	Model     policy.ModelDescriptor
	MaxTokens int

	// Action and Payload drive fallback content when the provider is
	// unavailable or unconfigured.
	Action  models.ActionKind
	Payload models.ActionPayload
}

// Failure describes an upstream error that was absorbed by serving
// fallback content.
type Failure struct {
	Status  int    `json:"status"`
	Details string `json:"details"`
}

// Result always carries usable content; Failure is non-nil when that
// content is a fallback rather than a provider response.
type Result struct {
	Content string
	Usage   *models.TokenUsage
	Failure *Failure
}

// anthropic wire shapes

type wireRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system,omitempty"`
	Messages  []models.Message `json:"messages"`
	Stream    bool             `json:"stream,omitempty"`
}

type wireResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *models.TokenUsage `json:"usage"`
}

// Invoke performs a synchronous completion. Transport failures,
// timeouts and non-2xx responses all degrade to fallback content with
// nil usage; the caller never sees a hard provider error.
func (c *Client) Invoke(ctx context.Context, req Request) Result {
	if !c.Configured() {
		return Result{Content: cannedContent(req.Action, req.Payload)}
	}

	resp, status, err := c.post(ctx, req, false)
	if err != nil {
		log.Printf("❌ provider call failed: %v", err)
		return Result{
			Content: fallbackContent,
			Failure: &Failure{Status: status, Details: err.Error()},
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("❌ provider response read failed: %v", err)
		return Result{Content: fallbackContent, Failure: &Failure{Status: status, Details: err.Error()}}
	}

	if status < 200 || status >= 300 {
		log.Printf("❌ provider returned %d: %s", status, truncate(string(body), 200))
		return Result{
			Content: fallbackContent,
			Failure: &Failure{Status: status, Details: truncate(string(body), 500)},
		}
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return Result{Content: fallbackContent, Failure: &Failure{Status: status, Details: err.Error()}}
	}

	var text string
	for _, block := range wire.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return Result{Content: text, Usage: wire.Usage}
}

// post issues the messages call. The returned status is 0 when the
// request never reached the provider.
func (c *Client) post(ctx context.Context, req Request, stream bool) (*http.Response, int, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	payload, err := json.Marshal(wireRequest{
		Model:     req.Model.ProviderID,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Stream:    stream,
	})
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpClient := c.client
	if stream {
		httpClient = c.streamClient
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}

	return resp, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
