package llm

import (
	"fmt"

	"trading-journal/config"
)

// Factory builds provider clients for a given credential
type Factory struct {
	cfg config.LLMConfig
}

// NewFactory creates a provider factory from server configuration
func NewFactory(cfg config.LLMConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Chat returns a chat client for provider authenticated with apiKey.
// An empty model selects the configured default for that provider.
func (f *Factory) Chat(provider, apiKey, model string) (ChatProvider, error) {
	switch provider {
	case ProviderOpenAI:
		if model == "" {
			model = f.cfg.OpenAIChatModel
		}
		return NewOpenAIClient(OpenAIConfig{
			Endpoint:       f.cfg.OpenAIEndpoint,
			APIKey:         apiKey,
			ChatModel:      model,
			EmbeddingModel: f.cfg.OpenAIEmbeddingModel,
			Timeout:        f.cfg.RequestTimeout,
		}), nil
	case ProviderAnthropic:
		if model == "" {
			model = f.cfg.AnthropicModel
		}
		return NewAnthropicClient(AnthropicConfig{
			Endpoint: f.cfg.AnthropicEndpoint,
			APIKey:   apiKey,
			Model:    model,
			Timeout:  f.cfg.RequestTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// Embedder returns an embedding client authenticated with apiKey
func (f *Factory) Embedder(apiKey string) Embedder {
	return NewOpenAIClient(OpenAIConfig{
		Endpoint:       f.cfg.OpenAIEndpoint,
		APIKey:         apiKey,
		ChatModel:      f.cfg.OpenAIChatModel,
		EmbeddingModel: f.cfg.OpenAIEmbeddingModel,
		Timeout:        f.cfg.RequestTimeout,
	})
}

// EmbeddingModel is the model name embedders are built with
func (f *Factory) EmbeddingModel() string {
	return f.cfg.OpenAIEmbeddingModel
}

// Completion returns the configured max tokens and temperature applied to req
func (f *Factory) Completion(req CompletionRequest) CompletionRequest {
	if req.MaxTokens == 0 {
		req.MaxTokens = f.cfg.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = f.cfg.Temperature
	}
	return req
}
