package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/comigor/taxassist-go/internal/chat"
)

// HTTPClient calls a remote completion service over its JSON contract.
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

// NewHTTPClient targets endpoint, the full URL of the completion route.
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

// Complete posts req and decodes the AIMessage reply. Any non-2xx status is
// an error, even when the body carries an apology message.
func (c *HTTPClient) Complete(ctx context.Context, req chat.CompletionRequest) (chat.AIMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return chat.AIMessage{}, fmt.Errorf("encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return chat.AIMessage{}, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return chat.AIMessage{}, fmt.Errorf("call completion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return chat.AIMessage{}, fmt.Errorf("completion service returned %s", resp.Status)
	}

	var reply chat.AIMessage
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return chat.AIMessage{}, fmt.Errorf("decode completion response: %w", err)
	}
	return reply.Normalize(req.UserContext), nil
}
