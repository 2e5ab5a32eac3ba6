// Package perplexity generates local business recommendations with the
// Perplexity Sonar chat completions API.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// DefaultURL is the Sonar chat completions endpoint.
const DefaultURL = "https://api.perplexity.ai/chat/completions"

// ServiceName labels this provider in usage counters.
const ServiceName = "perplexity"

// costPerCallMicros is the flat request fee of the sonar model in USD micros.
const costPerCallMicros = 5000

// UsageRecorder counts outbound calls.
type UsageRecorder interface {
	Record(ctx context.Context, service string, costMicros int64)
}

// Client implements the recommendation Generator on top of Sonar.
type Client struct {
	apiKey string
	model  string
	url    string
	http   *http.Client
	usage  UsageRecorder
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the endpoint (tests, proxies).
func WithURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.url = u
		}
	}
}

// WithUsage records every call with r.
func WithUsage(r UsageRecorder) Option { return func(c *Client) { c.usage = r } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// NewClient creates a Sonar client. An API key is required.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("perplexity api key is required")
	}
	if model == "" {
		model = "sonar"
	}
	c := &Client{
		apiKey: apiKey,
		model:  model,
		url:    DefaultURL,
		http:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type sonarRequest struct {
	Model            string            `json:"model"`
	Messages         []sonarMessage    `json:"messages"`
	WebSearchOptions *webSearchOptions `json:"web_search_options,omitempty"`
}

type webSearchOptions struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type sonarMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sonarResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate asks Sonar for businesses near (lat, lng) in each category.
// Categories the model leaves out come back as empty lists.
func (c *Client) Generate(ctx context.Context, lat, lng float64, categories []string, mode domain.Mode) (domain.Recommendations, error) {
	ctx, span := otel.Tracer("providers/perplexity").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("model", c.model),
			attribute.Int("categories", len(categories)),
		),
	)
	defer span.End()

	content, err := c.execute(ctx, sonarRequest{
		Model: c.model,
		Messages: []sonarMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(lat, lng, categories, mode)},
		},
		WebSearchOptions: &webSearchOptions{SearchContextSize: "medium"},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var recs domain.Recommendations
	if err := json.Unmarshal([]byte(cleanJSONBlock(content)), &recs); err != nil {
		return nil, fmt.Errorf("perplexity: decode recommendations: %w", err)
	}
	out := make(domain.Recommendations, len(categories))
	for _, cat := range categories {
		out[cat] = pick(recs, cat)
	}
	return out, nil
}

// pick matches cat against the model's keys case-insensitively.
func pick(recs domain.Recommendations, cat string) []domain.Business {
	if list, ok := recs[cat]; ok {
		return nonNil(list)
	}
	for k, list := range recs {
		if strings.EqualFold(strings.TrimSpace(k), cat) {
			return nonNil(list)
		}
	}
	return []domain.Business{}
}

func nonNil(list []domain.Business) []domain.Business {
	if list == nil {
		return []domain.Business{}
	}
	return list
}

func (c *Client) execute(ctx context.Context, sreq sonarRequest) (string, error) {
	body, err := json.Marshal(sreq)
	if err != nil {
		return "", fmt.Errorf("perplexity: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("perplexity: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("perplexity: request failed: %w", err)
	}
	defer resp.Body.Close()
	if c.usage != nil {
		c.usage.Record(ctx, ServiceName, costPerCallMicros)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("perplexity: read body: %w", err)
	}
	var sresp sonarResponse
	if err := json.Unmarshal(raw, &sresp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("perplexity: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("perplexity: decode response: %w", err)
	}
	if sresp.Error != nil {
		return "", fmt.Errorf("perplexity api error: %s (%s)", sresp.Error.Message, sresp.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("perplexity: status %d", resp.StatusCode)
	}
	if len(sresp.Choices) == 0 {
		return "", errors.New("perplexity api returned no choices")
	}
	return sresp.Choices[0].Message.Content, nil
}

// cleanJSONBlock strips a surrounding markdown code fence.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if start := strings.Index(text, fence); start != -1 {
			text = text[start+len(fence):]
			if end := strings.LastIndex(text, "```"); end != -1 {
				text = text[:end]
			}
			return strings.TrimSpace(text)
		}
	}
	return text
}
