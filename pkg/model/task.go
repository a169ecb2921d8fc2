package model

import "time"

// Task is one question within one interview: the unit of scheduling.
// DependsOn/Dependents are projected from the job's question-name DAG
// into task-id edges scoped to this interview.
type Task struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	InterviewID string `json:"interview_id"`

	ScenarioID   string `json:"scenario_id"`
	AgentID      string `json:"agent_id"`
	ModelID      string `json:"model_id"`
	QuestionID   string `json:"question_id"`
	QuestionName string `json:"question_name"`
	QuestionIdx  int    `json:"question_index"`
	Iteration    int    `json:"iteration"`

	DependsOn     []string      `json:"depends_on"`
	Dependents    []string      `json:"dependents"`
	ExecutionType ExecutionType `json:"execution_type"`
}

// TaskState is the volatile state tracked alongside a Task definition.
type TaskState struct {
	Status      TaskStatus        `json:"status"`
	UnmetDeps   int               `json:"unmet_deps"`
	Attempts    map[ErrorKind]int `json:"attempts"`
	LastError   *TaskLastError    `json:"last_error,omitempty"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
}

// TaskLastError records the most recent failure for a task.
type TaskLastError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewTaskState builds the initial volatile state for a freshly created
// task, given its dependency count.
func NewTaskState(initialStatus TaskStatus, unmetDeps int) TaskState {
	return TaskState{
		Status:    initialStatus,
		UnmetDeps: unmetDeps,
		Attempts:  make(map[ErrorKind]int),
	}
}

// RenderedTask is a Task dressed with the output of the prompt-render
// capability, ready to hand to the coordinator.
type RenderedTask struct {
	Task            Task   `json:"task"`
	SystemPrompt    string `json:"system_prompt"`
	UserPrompt      string `json:"user_prompt"`
	FilesList       []any  `json:"files_list,omitempty"`
	CacheKey        string `json:"cache_key"`
	EstimatedTokens int    `json:"estimated_tokens"`
	Service         string `json:"service"`
	ModelName       string `json:"model_name"`
}

// TaskLocation records which interview (and job) a task definition
// lives under, so a render pass that only has a bare task id (popped
// from the ready set) can batch-fetch the right interview/task keys
// without a SCAN.
type TaskLocation struct {
	JobID       string `json:"job_id"`
	InterviewID string `json:"interview_id"`
}
