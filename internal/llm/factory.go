package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/memohai/replyd/internal/config"
)

// NewProviders builds one provider per configured entry.
func NewProviders(ctx context.Context, cfgs []config.ProviderConfig) ([]Provider, error) {
	out := make([]Provider, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := NewProvider(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// NewProvider builds the provider for one configuration entry.
func NewProvider(ctx context.Context, c config.ProviderConfig) (Provider, error) {
	key := c.ResolveAPIKey()
	switch strings.ToLower(c.ClientType) {
	case "openai":
		return NewOpenAIProvider(c.Name, key, c.BaseURL, c.MaxTokens), nil
	case "anthropic":
		return NewAnthropicProvider(c.Name, key, c.BaseURL, c.MaxTokens), nil
	case "gemini":
		p, err := NewGeminiProvider(ctx, c.Name, key, c.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", c.Name, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported client type %q", c.Name, c.ClientType)
	}
}
