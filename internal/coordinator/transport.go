package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// BatchPath is the batch endpoint, relative to the gateway base URL.
const BatchPath = "/functions/v1/batch-recommendations"

// StatusError is returned when the batch endpoint answers with a non-2xx
// status. Message is the endpoint's {error} field when present.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("batch endpoint: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("batch endpoint: %d", e.Status)
}

// HTTPTransport posts batches to a gateway over HTTP.
type HTTPTransport struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPTransport returns a transport for baseURL authenticating with token.
// A zero timeout leaves calls unbounded.
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, batch domain.BatchRequest) (domain.BatchResponse, error) {
	var out domain.BatchResponse

	payload, err := json.Marshal(batch)
	if err != nil {
		return out, fmt.Errorf("encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+BatchPath, bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return out, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read batch response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return out, &StatusError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode batch response: %w", err)
	}
	return out, nil
}
