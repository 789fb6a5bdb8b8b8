package llm

import "context"

// LLMClient abstracts an OpenAI-compatible chat completion endpoint.
// The engine only ever needs single-turn completions, so the surface is
// deliberately small.
type LLMClient interface {
	// GenerateResponse sends a single prompt and returns the assistant's
	// text content. systemMessage may be empty.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the model name this client targets.
	GetModel() string

	// GetEndpoint returns the base URL this client targets.
	GetEndpoint() string
}
