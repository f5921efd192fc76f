// Package llm provides chat completion clients used for formatting and
// translation.
package llm

import (
	"context"

	"go.aimuz.me/voxtype/internal/types"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures a single completion.
type Options struct {
	MaxTokens   int
	Temperature float64
	// Headers are extra request headers, e.g. the mode tag sent to the proxy.
	Headers map[string]string
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, types.Usage, error)
}

// Config holds the endpoint and credentials for a Completer.
type Config struct {
	APIKey  string
	BaseURL string // empty for api.openai.com
	Model   string
	// Headers are sent with every request.
	Headers map[string]string
}

// NewCompleter creates a Completer for an OpenAI-compatible endpoint.
func NewCompleter(cfg Config) Completer {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return newOpenAICompleter(cfg)
}
