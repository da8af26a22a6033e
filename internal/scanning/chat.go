package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// TogetherBaseURL is the OpenAI-compatible endpoint of Together AI
	TogetherBaseURL = "https://api.together.xyz/v1"
	// TogetherDefaultModel is a vision-capable model served by Together AI
	TogetherDefaultModel = "meta-llama/Llama-3.2-11B-Vision-Instruct-Turbo"

	// OpenAIBaseURL is the OpenAI API endpoint
	OpenAIBaseURL = "https://api.openai.com/v1"
	// OpenAIDefaultModel is a vision-capable OpenAI model
	OpenAIDefaultModel = "gpt-4o-mini"
)

// ChatCompletions implements the Backend interface against any OpenAI-compatible
// /chat/completions endpoint (Together AI, OpenAI, vLLM, ...)
type ChatCompletions struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewChatCompletions creates a new ChatCompletions backend
func NewChatCompletions(baseURL, apiKey, modelName string, timeout time.Duration) (*ChatCompletions, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("chat completions api key is required")
	}
	if baseURL == "" {
		baseURL = TogetherBaseURL
	}
	if modelName == "" {
		modelName = TogetherDefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &ChatCompletions{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the messages to /chat/completions and returns the first choice
func (c *ChatCompletions) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    make([]chatMessage, 0, len(messages)),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	for _, m := range messages {
		msg := chatMessage{Role: string(m.Role)}
		for _, p := range m.Parts {
			if p.IsImage() {
				msg.Content = append(msg.Content, chatContent{
					Type: "image_url",
					ImageURL: &chatImageURL{
						URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(p.ImagePNG),
					},
				})
				continue
			}
			msg.Content = append(msg.Content, chatContent{Type: "text", Text: p.Text})
		}
		reqBody.Messages = append(reqBody.Messages, msg)
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling chat completions API: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: chat completions API error (status %d): %s", ErrBackend, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrBackend, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in chat completions response", ErrBackend)
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// Close is a no-op for the HTTP client
func (c *ChatCompletions) Close() error {
	return nil
}
