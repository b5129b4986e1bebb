// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davinto-labs/davinto/lib/secret"
)

// maxResponseSize bounds API response bodies. Generated images come
// back base64-inline, so the cap is generous.
const maxResponseSize = 32 << 20

// Config wires a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is the bearer token. Required.
	APIKey *secret.Buffer

	// ChatModel is the model for Complete calls.
	ChatModel string

	// ImageModel is the model for GenerateImage calls.
	ImageModel string

	// HTTPClient defaults to a client with a 120s timeout; image
	// generation is slow.
	HTTPClient *http.Client
}

// Client talks to an OpenAI-compatible API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     *secret.Buffer
	chatModel  string
	imageModel string
}

// NewClient validates the configuration and returns a client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("llm: BaseURL is required")
	}
	if config.APIKey == nil {
		return nil, fmt.Errorf("llm: APIKey is required")
	}
	if config.ChatModel == "" {
		return nil, fmt.Errorf("llm: ChatModel is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		chatModel:  config.ChatModel,
		imageModel: config.ImageModel,
	}, nil
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int64 `json:"prompt_tokens"`
	OutputTokens int64 `json:"completion_tokens"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int64     `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Complete sends a chat completion request and returns the assistant
// text. The system prompt is optional.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("llm: prompt is empty")
	}

	request := chatRequest{Model: c.chatModel, MaxTokens: 1024}
	if system != "" {
		request.Messages = append(request.Messages, Message{Role: "system", Content: system})
	}
	request.Messages = append(request.Messages, Message{Role: "user", Content: prompt})

	body, err := c.post(ctx, "/chat/completions", request)
	if err != nil {
		return "", err
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("llm: decoding completion response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("llm: completion response has no choices")
	}
	return response.Choices[0].Message.Content, nil
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage renders one image for the prompt and returns the raw
// image bytes (PNG unless the server chooses otherwise).
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if c.imageModel == "" {
		return nil, fmt.Errorf("llm: no image model configured")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("llm: prompt is empty")
	}

	request := imageRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		ResponseFormat: "b64_json",
	}
	body, err := c.post(ctx, "/images/generations", request)
	if err != nil {
		return nil, err
	}

	var response imageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("llm: decoding image response: %w", err)
	}
	if len(response.Data) == 0 || response.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("llm: image response has no data")
	}
	image, err := decodeBase64(response.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("llm: decoding image data: %w", err)
	}
	return image, nil
}

// post sends a JSON request with the bearer token and returns the
// response body. Non-200 statuses come back as *ProviderError.
func (c *Client) post(ctx context.Context, path string, request any) ([]byte, error) {
	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey.String())

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("llm: sending request: %w", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("llm: reading response: %w", err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		return nil, readProviderError(httpResponse.StatusCode, body)
	}
	return body, nil
}
