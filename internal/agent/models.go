package agent

import (
	"fmt"

	"github.com/rahul/neurotasker/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewModel builds the chat model for a configured provider. Both providers are expected
// to point at a server on this machine.
func NewModel(name string, p config.ProviderConfig) (llms.Model, error) {
	switch name {
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(p.Model),
			ollama.WithFormat("json"),
		}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama model: %w", err)
		}
		return llm, nil

	case "openai":
		// OpenAI-compatible local servers (LM Studio, llama.cpp) ignore the token.
		token := p.APIKey
		if token == "" {
			token = "local"
		}
		opts := []openai.Option{
			openai.WithToken(token),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return llm, nil

	default:
		return nil, fmt.Errorf("provider %s not supported", name)
	}
}
