package model

// Answer is the persisted outcome of a task, keyed by
// (job_id, interview_id, question_name). Written once per task
// completion, idempotently under that key.
type Answer struct {
	JobID        string `json:"job_id"`
	InterviewID  string `json:"interview_id"`
	QuestionName string `json:"question_name"`

	Value   any    `json:"answer"`
	Comment string `json:"comment,omitempty"`

	SystemPrompt string `json:"system_prompt,omitempty"`
	UserPrompt   string `json:"user_prompt,omitempty"`

	Cached bool `json:"cached"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	RawResponse     any    `json:"raw_response,omitempty"`
	GeneratedTokens string `json:"generated_tokens,omitempty"`

	ModelID string `json:"model_id"`

	InputPricePerMillion  float64 `json:"input_price_per_million_tokens"`
	OutputPricePerMillion float64 `json:"output_price_per_million_tokens"`

	CacheKey string `json:"cache_key,omitempty"`

	Validated        bool   `json:"validated"`
	ReasoningSummary string `json:"reasoning_summary,omitempty"`
}

// Result is one assembled output per completed interview.
type Result struct {
	InterviewID   string `json:"interview_id"`
	InterviewHash string `json:"interview_hash"`

	ScenarioID string `json:"scenario_id"`
	AgentID    string `json:"agent_id"`
	ModelID    string `json:"model_id"`
	Iteration  int    `json:"iteration"`

	Answers         map[string]any     `json:"answers"`
	Prompts         map[string]string  `json:"prompts"`
	RawResponses    map[string]any     `json:"raw_responses"`
	InputTokens     map[string]int     `json:"input_tokens"`
	OutputTokens    map[string]int     `json:"output_tokens"`
	Prices          map[string]float64 `json:"prices"`
	CacheInfo       map[string]bool    `json:"cache_info"`
	Validated       map[string]bool    `json:"validated"`
	Comments        map[string]string  `json:"comments"`
	GeneratedTokens map[string]string  `json:"generated_tokens"`
	Reasoning       map[string]string  `json:"reasoning"`
}

// Results is the top-level return value of JobHandle.results().
type Results struct {
	JobID   string   `json:"job_id"`
	Results []Result `json:"results"`
}
