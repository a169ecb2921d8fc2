package worker

import "context"

// LLMRequest is the input to the opaque LLM capability.
type LLMRequest struct {
	SystemPrompt string
	UserPrompt   string
	Cache        bool
	Iteration    int
	FilesList    []any
}

// LLMResponse is the output of the LLM capability, carrying both the
// answer fields and the usage/pricing fields the service returns as
// two nested objects.
type LLMResponse struct {
	Answer           any
	Comment          string
	GeneratedTokens  string
	ReasoningSummary string

	InputTokens  int
	OutputTokens int
	RawResponse  any
	CacheUsed    bool
	CacheKey     string

	InputPricePerMillion  float64
	OutputPricePerMillion float64
}

// LLMClient is the external LLM capability. The engine never inspects
// its internals, only classifies the error it returns.
type LLMClient interface {
	GetResponse(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
