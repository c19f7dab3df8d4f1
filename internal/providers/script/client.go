package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"reelgen/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to an OpenAI-compatible chat completion endpoint. It issues
// single-shot requests; retry policy belongs to the pipeline executor.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient constructs a chat completion client.
func NewClient(apiKey, baseURL, model string, timeoutSeconds int) *Client {
	timeout := defaultHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimSpace(baseURL),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteJSON sends a JSON-only completion request and returns the model's
// raw content. Failures are tagged with the services sentinel markers so the
// executor can decide whether to retry.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrValidation, "script", "complete", "api key required", nil)
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(systemPrompt)},
			{Role: "user", Content: strings.TrimSpace(userPrompt)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "script", "complete", "read response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatusError(resp.StatusCode, raw)
	}

	var completion chatResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return "", services.Wrap(services.ErrTransient, "script", "complete", "decode completion payload", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrFatal, "script", "complete", completion.Error.Message, nil)
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	// Models sometimes return truncated or empty choices transiently.
	return "", services.Wrap(services.ErrTransient, "script", "complete", "completion contained no content", nil)
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "script", "complete", "request timed out", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrTransient, "script", "complete", "request failed", err)
}

func classifyStatusError(status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	message := fmt.Sprintf("http %d: %s", status, snippet)
	switch {
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "script", "complete", message, nil)
	case status >= 500:
		return services.Wrap(services.ErrTransient, "script", "complete", message, nil)
	default:
		return services.Wrap(services.ErrFatal, "script", "complete", message, nil)
	}
}

// DecodeModelJSON unmarshals model output into target, tolerating markdown
// code fences and leading prose around the JSON object.
func DecodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}
	sanitized := extractJSON(stripCodeFences(trimmed))
	if sanitized == "" {
		return fmt.Errorf("no JSON object found in model output")
	}
	return json.Unmarshal([]byte(sanitized), target)
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func extractJSON(content string) string {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if content[start] == '{' {
		end = strings.LastIndex(content, "}")
	} else {
		end = strings.LastIndex(content, "]")
	}
	if end <= start {
		return ""
	}
	return content[start : end+1]
}
