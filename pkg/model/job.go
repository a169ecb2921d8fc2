package model

import "time"

// Job is the immutable definition created once at submit. Volatile
// counters (CompletedInterviews, FailedInterviews, State) are tracked
// separately in the volatile storage namespace, not on this struct.
type Job struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	InterviewIDs []string  `json:"interview_ids"`

	DAG QuestionNameDAG `json:"dag"`

	Scenarios map[string]Scenario  `json:"scenarios"`
	Agents    map[string]Agent     `json:"agents"`
	Models    map[string]ModelSpec `json:"models"`
	Questions map[string]Question  `json:"questions"`

	RetryPolicy RetryPolicyTable `json:"retry_policy"`
	Iterations  int              `json:"iterations"`

	StopOnException bool `json:"stop_on_exception"`
	Cache           bool `json:"cache"`

	TotalInterviews int `json:"total_interviews"`
}

// JobCounters holds the volatile state tracked alongside a Job.
type JobCounters struct {
	CompletedInterviews int      `json:"completed_interviews"`
	FailedInterviews    int      `json:"failed_interviews"`
	State               JobState `json:"state"`
}

// JobProgress is the per-job interview and task tally returned by the
// progress surface.
type JobProgress struct {
	TotalInterviews     int `json:"total_interviews"`
	CompletedInterviews int `json:"completed_interviews"`
	FailedInterviews    int `json:"failed_interviews"`
	RunningInterviews   int `json:"running_interviews"`

	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	SkippedTasks   int `json:"skipped_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	BlockedTasks   int `json:"blocked_tasks"`
	PendingTasks   int `json:"pending_tasks"`
	ReadyTasks     int `json:"ready_tasks"`
	RunningTasks   int `json:"running_tasks"`
}

// JobStatus is the shape returned by JobHandle.status().
type JobStatus struct {
	Pending               int `json:"pending"`
	Running               int `json:"running"`
	Completed             int `json:"completed"`
	CompletedWithFailures int `json:"completed_with_failures"`
	Cancelled             int `json:"cancelled"`
}

// TaskError is one record in JobHandle.errors().
type TaskError struct {
	TaskID       string    `json:"task_id"`
	InterviewID  string    `json:"interview_id"`
	QuestionName string    `json:"question_name"`
	ModelID      string    `json:"model_id"`
	ErrorKind    ErrorKind `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Attempts     int       `json:"attempts"`
}

// TaskExecutionError is raised when stop_on_exception fires.
type TaskExecutionError struct {
	TaskID       string
	JobID        string
	InterviewID  string
	ErrorKind    ErrorKind
	ErrorMessage string
}

func (e *TaskExecutionError) Error() string {
	return "task execution failed: " + e.TaskID + ": " + string(e.ErrorKind) + ": " + e.ErrorMessage
}
