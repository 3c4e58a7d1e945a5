// Package client is the HTTP transport for the agent API: it opens
// response SSE streams, submits resume decisions, and reads conversation
// metadata.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/g-pavlov/nalai-sub000/internal/observability"
	"github.com/g-pavlov/nalai-sub000/pkg/api"
	pubobs "github.com/g-pavlov/nalai-sub000/pkg/observability"
	"github.com/g-pavlov/nalai-sub000/pkg/sse"
)

const (
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 3
)

// Config holds client construction parameters.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8000".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds non-streaming requests. Streaming requests are
	// bounded by their context instead.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests; zero disables
	// throttling.
	RequestsPerSecond float64

	// Burst is the throttle burst size.
	Burst int

	// HTTPClient overrides the transport, used in tests.
	HTTPClient *http.Client
}

// Client talks to the agent API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// New creates a client from config.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
		maxRetries: defaultMaxRetries,
	}
}

// SendMessage opens the response stream for a new user message. An empty
// conversationID starts a new conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*sse.Reader, error) {
	return c.OpenStream(ctx, api.NewMessageRequest(conversationID, content))
}

// Resume opens the resume stream carrying a human-review decision. The
// returned stream continues the same response that was interrupted.
func (c *Client) Resume(ctx context.Context, conversationID string, decision api.InputItem) (*sse.Reader, error) {
	return c.OpenStream(ctx, api.NewDecisionRequest(conversationID, decision))
}

// OpenStream posts a stream request and returns the SSE frame reader over
// the response body. The caller owns the reader and must close it; the
// engine does so as part of Consume.
func (c *Client) OpenStream(ctx context.Context, req api.StreamRequest) (*sse.Reader, error) {
	ctx, span := observability.StartSpan(ctx, "client.OpenStream",
		trace.WithAttributes(attribute.String("conversation.id", req.ConversationID)))
	defer span.End()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		pubobs.RecordRequest("/responses", "transport_error")
		return nil, NewAPIError(ErrorCodeTimeout, err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		pubobs.RecordRequest("/responses", strconv.Itoa(resp.StatusCode))
		return nil, c.handleErrorResponse(resp)
	}

	pubobs.RecordRequest("/responses", strconv.Itoa(resp.StatusCode))
	return sse.NewReader(resp.Body), nil
}

// ConversationInfo is the metadata record for one stored conversation.
type ConversationInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListConversations returns the conversations visible to the caller.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	var out struct {
		Conversations []ConversationInfo `json:"conversations"`
	}
	if err := c.doRequestWithRetry(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetConversation fetches one conversation's metadata.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationInfo, error) {
	var out ConversationInfo
	if err := c.doRequestWithRetry(ctx, http.MethodGet, "/conversations/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation removes a stored conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doRequestWithRetry(ctx, http.MethodDelete, "/conversations/"+id, nil, nil)
}

// doRequestWithRetry runs a non-streaming request with exponential backoff
// on rate limiting and server errors.
func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, reqBody, result any) error {
	var body []byte
	if reqBody != nil {
		var err error
		body, err = json.Marshal(reqBody)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = NewAPIError(ErrorCodeTimeout, err.Error(), err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = c.handleErrorResponse(resp)
			_ = resp.Body.Close()
			pubobs.RecordRequest(endpoint, strconv.Itoa(resp.StatusCode))
			continue
		}

		pubobs.RecordRequest(endpoint, strconv.Itoa(resp.StatusCode))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := c.handleErrorResponse(resp)
			_ = resp.Body.Close()
			return err
		}

		if result == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil
		}
		err = json.NewDecoder(resp.Body).Decode(result)
		_ = resp.Body.Close()
		return err
	}

	return lastErr
}

// handleErrorResponse converts a non-2xx response into an APIError,
// preferring the server's structured error body when present.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
		Type   string `json:"type"`
	}
	message := string(body)
	var errType string
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			message = errResp.Error
		} else if errResp.Detail != "" {
			message = errResp.Detail
		}
		errType = errResp.Type
	}

	code := codeForStatus(resp.StatusCode)
	return &APIError{
		Code:        code,
		Message:     message,
		Type:        errType,
		StatusCode:  resp.StatusCode,
		IsRetryable: isRetryableCode(code),
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}
