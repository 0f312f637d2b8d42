package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unstableneutron/oracle/pkg/errors"
)

const (
	// openaiAPIBaseURL is the default base URL for the OpenAI API.
	openaiAPIBaseURL = "https://api.openai.com/v1"

	// defaultHTTPTimeout bounds a single non-streaming HTTP exchange.
	// Streaming and background waits are bounded by the executor's deadline,
	// not by this client.
	defaultHTTPTimeout = 120 * time.Second
)

// OpenAIClient implements the Client interface against the OpenAI
// Responses API, which supports both SSE streaming and background jobs.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption customizes an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL overrides the API endpoint, e.g. for a proxy or a mock server.
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		c.httpClient = hc
	}
}

// NewOpenAIClient creates a client for the OpenAI Responses API.
// The apiKey should come from credential resolution, not be hardcoded.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{
			Key:    "openai.api_key",
			Reason: "API key is required for the OpenAI backend",
		}
	}

	c := &OpenAIClient{
		apiKey:  apiKey,
		baseURL: openaiAPIBaseURL,
		httpClient: &http.Client{
			// No overall timeout: streaming responses stay open for the
			// duration of generation. Deadlines are enforced upstream.
			Transport: &http.Transport{
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: defaultHTTPTimeout,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the backend identifier.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Stream opens an SSE stream for the request and relays text deltas until
// the backend sends its terminal event.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	httpResp, err := c.post(ctx, c.buildAPIRequest(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 10)
	go c.processStream(ctx, httpResp, events)
	return events, nil
}

// Create submits the request as a background job and returns the
// acknowledgement immediately.
func (c *OpenAIClient) Create(ctx context.Context, req Request) (*Job, error) {
	apiReq := c.buildAPIRequest(req, false)
	apiReq.Background = true

	httpResp, err := c.post(ctx, apiReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	apiResp, err := c.decodeResponse(httpResp)
	if err != nil {
		return nil, err
	}
	return &Job{ID: apiResp.ID, Status: Status(apiResp.Status)}, nil
}

// Retrieve fetches the current state of a background job.
func (c *OpenAIClient) Retrieve(ctx context.Context, id string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/responses/"+id, nil)
	if err != nil {
		return nil, &errors.BackendError{
			Backend: "openai",
			Message: fmt.Sprintf("failed to create request: %v", err),
			Cause:   err,
		}
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network-level failure; the classifier upstream decides
		// retryability.
		return nil, err
	}
	defer httpResp.Body.Close()

	apiResp, err := c.decodeResponse(httpResp)
	if err != nil {
		return nil, err
	}
	return apiResp.normalize(), nil
}

// buildAPIRequest constructs the Responses API request body.
func (c *OpenAIClient) buildAPIRequest(req Request, stream bool) *openaiRequest {
	apiReq := &openaiRequest{
		Model:  req.Model,
		Input:  req.Input,
		Stream: stream,
	}
	if req.MaxOutputTokens > 0 {
		apiReq.MaxOutputTokens = &req.MaxOutputTokens
	}
	if req.WebSearch {
		apiReq.Tools = []openaiTool{{Type: "web_search"}}
	}
	return apiReq
}

// post sends the request body and returns the raw HTTP response, converting
// non-2xx statuses into BackendError.
func (c *OpenAIClient) post(ctx context.Context, apiReq *openaiRequest) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.BackendError{
			Backend: "openai",
			Message: fmt.Sprintf("failed to marshal request: %v", err),
			Cause:   err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.BackendError{
			Backend: "openai",
			Message: fmt.Sprintf("failed to create request: %v", err),
			Cause:   err,
		}
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network-level failure; left unwrapped for the transport
		// classifier.
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, c.errorFromStatus(httpResp)
	}
	return httpResp, nil
}

func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "oracle/1.0")
}

// decodeResponse parses a non-streaming response body.
func (c *OpenAIClient) decodeResponse(httpResp *http.Response) (*openaiResponse, error) {
	if httpResp.StatusCode != http.StatusOK {
		return nil, c.errorFromStatus(httpResp)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		// Body read failures are connection-level, not API-level.
		return nil, err
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.BackendError{
			Backend:    "openai",
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("failed to parse response: %v", err),
			Cause:      err,
		}
	}
	return &apiResp, nil
}

// errorFromStatus builds a BackendError from a non-2xx response.
func (c *OpenAIClient) errorFromStatus(httpResp *http.Response) error {
	respBody, _ := io.ReadAll(httpResp.Body)

	var errResp openaiErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
		return &errors.BackendError{
			Backend:    "openai",
			StatusCode: httpResp.StatusCode,
			Message:    errResp.Error.Message,
			Suggestion: suggestionForStatus(httpResp.StatusCode),
			RequestID:  httpResp.Header.Get("x-request-id"),
		}
	}
	return &errors.BackendError{
		Backend:    "openai",
		StatusCode: httpResp.StatusCode,
		Message:    fmt.Sprintf("API request failed with status %d: %s", httpResp.StatusCode, string(respBody)),
		RequestID:  httpResp.Header.Get("x-request-id"),
	}
}

// suggestionForStatus returns actionable guidance for common HTTP failures.
func suggestionForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that your API key is valid and correctly configured"
	case http.StatusForbidden:
		return "Your API key may not have access to this model or feature"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Retry after a short delay"
	case http.StatusBadRequest:
		return "Review the request parameters"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "The OpenAI API is experiencing issues. Retry after a short delay"
	default:
		return ""
	}
}

// processStream reads the SSE stream and relays events to the channel.
func (c *OpenAIClient) processStream(ctx context.Context, httpResp *http.Response, events chan<- StreamEvent) {
	defer close(events)
	defer httpResp.Body.Close()

	reader := bufio.NewReader(httpResp.Body)

	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Stream ended without a terminal event. The executor
				// treats a missing final response as a lost connection.
				return
			}
			events <- StreamEvent{Err: err}
			return
		}

		// SSE format: "event: <type>\ndata: <json>\n\n"
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "event:") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event openaiStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // Skip malformed events
		}

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta != "" {
				events <- StreamEvent{Delta: event.Delta}
			}

		case "response.completed", "response.failed", "response.incomplete", "response.cancelled":
			if event.Response != nil {
				events <- StreamEvent{Response: event.Response.normalize()}
			}
			return

		case "error":
			events <- StreamEvent{Err: &errors.BackendError{
				Backend: "openai",
				Message: event.Message,
			}}
			return
		}
	}
}

// openaiRequest is the Responses API request body.
type openaiRequest struct {
	Model           string       `json:"model"`
	Input           string       `json:"input"`
	MaxOutputTokens *int         `json:"max_output_tokens,omitempty"`
	Tools           []openaiTool `json:"tools,omitempty"`
	Stream          bool         `json:"stream,omitempty"`
	Background      bool         `json:"background,omitempty"`
}

type openaiTool struct {
	Type string `json:"type"`
}

// openaiResponse is the Responses API response object.
type openaiResponse struct {
	ID                string              `json:"id"`
	Model             string              `json:"model"`
	Status            string              `json:"status"`
	Output            []openaiOutputItem  `json:"output"`
	Usage             *openaiUsage        `json:"usage"`
	Error             *openaiDetail       `json:"error"`
	IncompleteDetails *openaiIncompletion `json:"incomplete_details"`
}

type openaiOutputItem struct {
	Type    string              `json:"type"`
	Content []openaiContentPart `json:"content"`
}

type openaiContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openaiUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	OutputTokenDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

type openaiDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type openaiIncompletion struct {
	Reason string `json:"reason"`
}

// openaiErrorResponse is the error envelope returned for non-2xx statuses.
type openaiErrorResponse struct {
	Error openaiDetail `json:"error"`
}

// openaiStreamEvent is a single SSE payload.
type openaiStreamEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta"`
	Response *openaiResponse `json:"response"`
	Message  string          `json:"message"`
}

// normalize converts the wire response to the backend-agnostic form.
func (r *openaiResponse) normalize() *Response {
	resp := &Response{
		ID:         r.ID,
		Model:      r.Model,
		Status:     Status(r.Status),
		OutputText: r.outputText(),
	}
	if r.Usage != nil {
		resp.Usage = Usage{
			InputTokens:     r.Usage.InputTokens,
			OutputTokens:    r.Usage.OutputTokens,
			ReasoningTokens: r.Usage.OutputTokenDetails.ReasoningTokens,
			TotalTokens:     r.Usage.TotalTokens,
		}
	}
	if r.Error != nil {
		resp.Error = &Diagnostic{Code: r.Error.Code, Message: r.Error.Message}
	}
	if r.IncompleteDetails != nil {
		resp.Incomplete = &Diagnostic{Code: r.IncompleteDetails.Reason}
	}
	return resp
}

// outputText concatenates the text parts of all message output items.
func (r *openaiResponse) outputText() string {
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

// Compile-time interface check.
var _ Client = (*OpenAIClient)(nil)
