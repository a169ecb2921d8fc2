// Package llmclient provides an HTTP adapter for the external LLM
// capability. The engine treats this service as opaque: it sends
// prompts and gets back an answer plus usage/pricing, and never
// inspects how the response was produced.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/worker"
)

// Client posts worker.LLMRequest to a remote LLM gateway and decodes
// its edsl_dict/model_outputs response shape into a worker.LLMResponse.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client posting to baseURL + "/generate".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type wireRequest struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Cache        bool   `json:"cache"`
	Iteration    int    `json:"iteration"`
	FilesList    []any  `json:"files_list,omitempty"`
}

type edslDict struct {
	Answer           any    `json:"answer"`
	Comment          string `json:"comment"`
	GeneratedTokens  string `json:"generated_tokens"`
	ReasoningSummary string `json:"reasoning_summary"`
}

type modelOutputs struct {
	InputTokens           int     `json:"input_tokens"`
	OutputTokens          int     `json:"output_tokens"`
	Response              any     `json:"response"`
	CacheUsed             bool    `json:"cache_used"`
	CacheKey              string  `json:"cache_key"`
	InputPricePerMillion  float64 `json:"input_price_per_million_tokens"`
	OutputPricePerMillion float64 `json:"output_price_per_million_tokens"`
}

type wireResponse struct {
	EDSLDict     edslDict     `json:"edsl_dict"`
	ModelOutputs modelOutputs `json:"model_outputs"`
}

// GetResponse implements worker.LLMClient.
func (c *Client) GetResponse(ctx context.Context, req worker.LLMRequest) (worker.LLMResponse, error) {
	body, err := json.Marshal(wireRequest{
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Cache:        req.Cache,
		Iteration:    req.Iteration,
		FilesList:    req.FilesList,
	})
	if err != nil {
		return worker.LLMResponse{}, fmt.Errorf("encode llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return worker.LLMResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return worker.LLMResponse{}, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return worker.LLMResponse{}, fmt.Errorf("llm service returned status %d", resp.StatusCode)
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return worker.LLMResponse{}, fmt.Errorf("decode llm response: %w", err)
	}

	return worker.LLMResponse{
		Answer:                out.EDSLDict.Answer,
		Comment:               out.EDSLDict.Comment,
		GeneratedTokens:       out.EDSLDict.GeneratedTokens,
		ReasoningSummary:      out.EDSLDict.ReasoningSummary,
		InputTokens:           out.ModelOutputs.InputTokens,
		OutputTokens:          out.ModelOutputs.OutputTokens,
		RawResponse:           out.ModelOutputs.Response,
		CacheUsed:             out.ModelOutputs.CacheUsed,
		CacheKey:              out.ModelOutputs.CacheKey,
		InputPricePerMillion:  out.ModelOutputs.InputPricePerMillion,
		OutputPricePerMillion: out.ModelOutputs.OutputPricePerMillion,
	}, nil
}
