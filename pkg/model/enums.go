package model

// TaskStatus is the nine-state task lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRendering TaskStatus = "rendering"
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
	TaskFailed    TaskStatus = "failed"
	TaskBlocked   TaskStatus = "blocked"
)

// Terminal reports whether the status is one the task cannot leave.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskSkipped, TaskFailed, TaskBlocked:
		return true
	default:
		return false
	}
}

// SatisfiesDependents reports whether a task in this status counts as
// "done" for the purpose of decrementing a dependent's unmet_deps.
func (s TaskStatus) SatisfiesDependents() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// ExecutionType selects the path a task takes through the engine.
type ExecutionType string

const (
	ExecutionLLM         ExecutionType = "llm"
	ExecutionAgentDirect ExecutionType = "agent_direct"
	ExecutionFunctional  ExecutionType = "functional"
)

// ErrorKind is the closed set of failure classifications used by the
// retry policy and surfaced through errors().
type ErrorKind string

const (
	ErrorNetworkTimeout  ErrorKind = "network_timeout"
	ErrorRateLimit       ErrorKind = "rate_limit"
	ErrorServerError     ErrorKind = "server_error"
	ErrorInvalidRequest  ErrorKind = "invalid_request"
	ErrorContentPolicy   ErrorKind = "content_policy"
	ErrorNoQueue         ErrorKind = "no_queue"
	ErrorDirectAnswer    ErrorKind = "direct_answer_error"
	ErrorUpstreamFailure ErrorKind = "upstream_failure"
	ErrorUnknown         ErrorKind = "unknown"
)

// InterviewState is a pure function of an interview's counters vs its
// total task count.
type InterviewState string

const (
	InterviewRunning               InterviewState = "running"
	InterviewCompleted             InterviewState = "completed"
	InterviewCompletedWithFailures InterviewState = "completed_with_failures"
)

// JobState mirrors InterviewState at the job level, plus cancellation.
type JobState string

const (
	JobRunning               JobState = "running"
	JobCompleted             JobState = "completed"
	JobCompletedWithFailures JobState = "completed_with_failures"
	JobCancelled             JobState = "cancelled"
)
