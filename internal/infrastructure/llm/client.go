// Package llm holds the upstream clients for every provider that speaks the
// OpenAI chat completions protocol.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Endpoint locates a provider's chat completions API.
type Endpoint struct {
	BaseURL string
	Model   string
}

// ChatClient implements ports.ProviderClient. One client is built per provider
// at startup and shared by every caller; the API key travels with each call.
type ChatClient struct {
	providerID string
	model      string
	client     openai.Client
}

// NewChatClient builds a client for ep. The SDK's own retries are disabled so
// every Invoke is exactly one upstream request.
func NewChatClient(providerID string, ep Endpoint, httpClient *http.Client) (*ChatClient, error) {
	if ep.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base url is empty", providerID)
	}
	if ep.Model == "" {
		return nil, fmt.Errorf("provider %s: model is empty", providerID)
	}
	opts := []option.RequestOption{
		option.WithBaseURL(ep.BaseURL),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &ChatClient{
		providerID: providerID,
		model:      ep.Model,
		client:     openai.NewClient(opts...),
	}, nil
}

func (c *ChatClient) Invoke(ctx context.Context, secret string, task Task) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if len(task.Context) > 0 {
		raw, err := json.Marshal(task.Context)
		if err != nil {
			return "", fmt.Errorf("encode task context: %w", err)
		}
		messages = append(messages, openai.SystemMessage("Context: "+string(raw)))
	}
	messages = append(messages, openai.UserMessage(task.Text))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}, option.WithAPIKey(secret))
	if err != nil {
		return "", describe(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion")
	}
	return content, nil
}

// describe reduces SDK errors to status and message; request dumps can carry
// headers and are never surfaced.
func describe(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("status %d", apiErr.StatusCode)
	}
	return err
}
