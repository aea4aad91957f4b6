package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Client speaks the OpenAI-compatible chat completions API, either to a
// provider directly or through a gateway.
type Client struct {
	BaseURL   string
	APIKey    string
	MaxTokens int
	HTTP      HTTPDoer
	// Usage, when set, receives one record per successful call.
	Usage *UsageLog
}

type ClientOpts struct {
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
	HTTP      HTTPDoer
	Usage     *UsageLog
}

func NewClient(opts ClientOpts) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	doer := opts.HTTP
	if doer == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{BaseURL: base, APIKey: opts.APIKey, MaxTokens: maxTokens, HTTP: doer, Usage: opts.Usage}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) Complete(ctx context.Context, r Request) (*Response, error) {
	if r.Model == "" {
		return nil, fmt.Errorf("completion request has no model")
	}
	var messages []chatMessage
	if strings.TrimSpace(r.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: r.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: r.Prompt})

	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}
	body, err := json.Marshal(chatRequest{
		Model:       r.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: r.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling completion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("completion service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	out := &Response{
		Text:         chat.Choices[0].Message.Content,
		InputTokens:  chat.Usage.PromptTokens,
		OutputTokens: chat.Usage.CompletionTokens,
		Model:        chat.Model,
	}
	if out.Model == "" {
		out.Model = r.Model
	}
	if c.Usage != nil {
		c.Usage.Record(r.Tag, out)
	}
	return out, nil
}
