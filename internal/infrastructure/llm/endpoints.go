package llm

import (
	"net/http"
	"strings"

	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// Task is the request shape handed to a provider.
type Task = ports.Task

// DefaultEndpoints lists the public OpenAI-compatible endpoints of the
// built-in providers. Providers missing here need a configured base URL.
var DefaultEndpoints = map[string]Endpoint{
	"perplexity": {BaseURL: "https://api.perplexity.ai/", Model: "sonar"},
	"openai":     {BaseURL: "https://api.openai.com/v1/", Model: "gpt-4o-mini"},
	"claude":     {BaseURL: "https://api.anthropic.com/v1/", Model: "claude-sonnet-4-5"},
	"gemini":     {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/", Model: "gemini-2.5-flash"},
	"deepseek":   {BaseURL: "https://api.deepseek.com/v1/", Model: "deepseek-chat"},
	"qwen":       {BaseURL: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1/", Model: "qwen-plus"},
	"kimi":       {BaseURL: "https://api.moonshot.ai/v1/", Model: "moonshot-v1-8k"},
	"grok":       {BaseURL: "https://api.x.ai/v1/", Model: "grok-3-mini"},
}

// ResolveEndpoints merges overrides over DefaultEndpoints for every id.
// Empty override fields keep the default. Ids that end up without a base URL
// or model are returned in missing.
func ResolveEndpoints(ids []string, overrides map[string]Endpoint) (resolved map[string]Endpoint, missing []string) {
	resolved = make(map[string]Endpoint, len(ids))
	for _, id := range ids {
		ep := DefaultEndpoints[id]
		if o, ok := overrides[id]; ok {
			if o.BaseURL != "" {
				ep.BaseURL = o.BaseURL
			}
			if o.Model != "" {
				ep.Model = o.Model
			}
		}
		if ep.BaseURL == "" || ep.Model == "" {
			missing = append(missing, id)
			continue
		}
		if !strings.HasSuffix(ep.BaseURL, "/") {
			ep.BaseURL += "/"
		}
		resolved[id] = ep
	}
	return resolved, missing
}

// BuildClients creates one ChatClient per resolved endpoint.
func BuildClients(endpoints map[string]Endpoint, httpClient *http.Client) (map[string]ports.ProviderClient, error) {
	clients := make(map[string]ports.ProviderClient, len(endpoints))
	for id, ep := range endpoints {
		c, err := NewChatClient(id, ep, httpClient)
		if err != nil {
			return nil, err
		}
		clients[id] = c
	}
	return clients, nil
}
