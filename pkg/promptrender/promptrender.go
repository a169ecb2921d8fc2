// Package promptrender provides an HTTP adapter for the external
// prompt-rendering capability. Template expansion, the memory plan,
// and option-permutation handling are
// inputs to the core (owned by whatever service answers this HTTP
// call), not logic this package reimplements.
package promptrender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// Client renders prompts by POSTing the (scenario, agent, model,
// question, prior answers) tuple to a remote render service and
// decoding its (system_prompt, user_prompt, files_list) response. This
// is an opaque network boundary; the engine never inspects the render
// service's internals.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client posting to baseURL + "/render".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	Scenario     model.Scenario  `json:"scenario"`
	Agent        model.Agent     `json:"agent"`
	Model        model.ModelSpec `json:"model"`
	Question     model.Question  `json:"question"`
	PriorAnswers map[string]any  `json:"prior_answers"`
}

type renderResponse struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	FilesList    []any  `json:"files_list,omitempty"`
}

// Render implements jobservice.PromptRenderer.
func (c *Client) Render(ctx context.Context, scenario model.Scenario, agent model.Agent, modelSpec model.ModelSpec, question model.Question, priorAnswers map[string]any) (string, string, []any, error) {
	body, err := json.Marshal(renderRequest{
		Scenario:     scenario,
		Agent:        agent,
		Model:        modelSpec,
		Question:     question,
		PriorAnswers: priorAnswers,
	})
	if err != nil {
		return "", "", nil, fmt.Errorf("encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", nil, fmt.Errorf("render service returned status %d", resp.StatusCode)
	}

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", nil, fmt.Errorf("decode render response: %w", err)
	}
	return out.SystemPrompt, out.UserPrompt, out.FilesList, nil
}
