package model

// Interview is one (scenario, agent, model, iteration) combination
// within a job. Created once at submit; TaskIDs is the full ordered
// task list (one per survey question). Volatile counters live in the
// volatile storage namespace, mirrored here as InterviewCounters for
// callers that want an in-memory snapshot.
type Interview struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	ScenarioID string `json:"scenario_id"`
	AgentID    string `json:"agent_id"`
	ModelID    string `json:"model_id"`
	Iteration  int    `json:"iteration"`

	TaskIDs []string `json:"task_ids"`

	// RandomizedOptions maps question_name -> permuted option list, for
	// any question in the survey's questions_to_randomize list.
	RandomizedOptions map[string][]any `json:"randomized_options,omitempty"`

	TotalTasks int `json:"total_tasks"`
}

// InterviewCounters holds the volatile per-interview state.
type InterviewCounters struct {
	Completed int            `json:"completed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Blocked   int            `json:"blocked"`
	State     InterviewState `json:"state"`
}

// Finalized reports whether the counters account for every task, i.e.
// the interview has reached a terminal state.
func (c InterviewCounters) Finalized(total int) bool {
	return c.Completed+c.Skipped+c.Failed+c.Blocked >= total
}

// DeriveState computes the interview's state purely from its counters.
func (c InterviewCounters) DeriveState(total int) InterviewState {
	if !c.Finalized(total) {
		return InterviewRunning
	}
	if c.Failed > 0 || c.Blocked > 0 {
		return InterviewCompletedWithFailures
	}
	return InterviewCompleted
}
