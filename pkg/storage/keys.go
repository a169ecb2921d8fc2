package storage

import "fmt"

// Keys centralizes the key-naming scheme so every store
// implementation and every caller agrees on layout.
var Keys = keyBuilder{}

type keyBuilder struct{}

func (keyBuilder) JobMeta(job string) string { return fmt.Sprintf("job:%s:meta", job) }
func (keyBuilder) JobScenario(job, scenario string) string {
	return fmt.Sprintf("job:%s:scenario:%s", job, scenario)
}
func (keyBuilder) JobAgent(job, agent string) string {
	return fmt.Sprintf("job:%s:agent:%s", job, agent)
}
func (keyBuilder) JobModel(job, model string) string {
	return fmt.Sprintf("job:%s:model:%s", job, model)
}
func (keyBuilder) JobQuestion(job, question string) string {
	return fmt.Sprintf("job:%s:question:%s", job, question)
}
func (keyBuilder) JobSurvey(job string) string { return fmt.Sprintf("job:%s:survey", job) }
func (keyBuilder) Interview(job, interview string) string {
	return fmt.Sprintf("job:%s:interview:%s", job, interview)
}
func (keyBuilder) Task(job, interview, task string) string {
	return fmt.Sprintf("job:%s:interview:%s:task:%s", job, interview, task)
}
func (keyBuilder) Answer(job, interview, question string) string {
	return fmt.Sprintf("job:%s:interview:%s:answer:%s", job, interview, question)
}

func (keyBuilder) TaskStatus(task string) string    { return fmt.Sprintf("task:%s:status", task) }
func (keyBuilder) TaskUnmetDeps(task string) string { return fmt.Sprintf("task:%s:unmet_deps", task) }
func (keyBuilder) TaskAttempts(task string) string  { return fmt.Sprintf("task:%s:attempts", task) }
func (keyBuilder) TaskLastError(task string) string { return fmt.Sprintf("task:%s:last_error", task) }
func (keyBuilder) TaskLocation(task string) string  { return fmt.Sprintf("task:%s:location", task) }

func (keyBuilder) InterviewCompleted(interview string) string {
	return fmt.Sprintf("interview:%s:completed", interview)
}
func (keyBuilder) InterviewSkipped(interview string) string {
	return fmt.Sprintf("interview:%s:skipped", interview)
}
func (keyBuilder) InterviewFailed(interview string) string {
	return fmt.Sprintf("interview:%s:failed", interview)
}
func (keyBuilder) InterviewBlocked(interview string) string {
	return fmt.Sprintf("interview:%s:blocked", interview)
}
func (keyBuilder) InterviewState(interview string) string {
	return fmt.Sprintf("interview:%s:state", interview)
}

func (keyBuilder) JobCompletedInterviews(job string) string {
	return fmt.Sprintf("job:%s:completed_interviews", job)
}
func (keyBuilder) JobFailedInterviews(job string) string {
	return fmt.Sprintf("job:%s:failed_interviews", job)
}
func (keyBuilder) JobState(job string) string { return fmt.Sprintf("job:%s:state", job) }

func (keyBuilder) JobReadyTasks(job string) string {
	return fmt.Sprintf("job:%s:ready_tasks", job)
}
func (keyBuilder) JobCountedInterviews(job string) string {
	return fmt.Sprintf("job:%s:counted_interviews", job)
}

func (keyBuilder) WorkerInfo(worker string) string { return fmt.Sprintf("worker:%s:info", worker) }
func (keyBuilder) WorkersActive() string           { return "workers:active" }

func (keyBuilder) Blob(job, scenario, field string) string {
	return fmt.Sprintf("blob:%s:%s:%s", job, scenario, field)
}
