package jobservice

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

// Stores is the typed-accessor layer over the Storage Protocol:
// component #6 in the system overview. It encodes entity keys, exposes
// batch operations, and maintains counters atomically, so jobservice's
// orchestration code never touches raw storage keys directly.
type Stores struct {
	st storage.Storage
}

func NewStores(st storage.Storage) *Stores { return &Stores{st: st} }

func (s *Stores) PutJob(ctx context.Context, j model.Job) error {
	return s.st.Persistent().Write(ctx, storage.Keys.JobMeta(j.ID), j)
}

func (s *Stores) GetJob(ctx context.Context, jobID string) (model.Job, bool, error) {
	v, ok, err := s.st.Persistent().Read(ctx, storage.Keys.JobMeta(jobID))
	if err != nil || !ok {
		return model.Job{}, ok, err
	}
	j, ok := v.(model.Job)
	return j, ok, nil
}

func (s *Stores) PutInterviews(ctx context.Context, interviews []model.Interview) error {
	items := make(map[string]any, len(interviews))
	for _, iv := range interviews {
		items[storage.Keys.Interview(iv.JobID, iv.ID)] = iv
	}
	return s.st.Persistent().BatchWrite(ctx, items)
}

func (s *Stores) GetInterviews(ctx context.Context, jobID string, ids []string) (map[string]model.Interview, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = storage.Keys.Interview(jobID, id)
	}
	raw, err := s.st.Persistent().BatchRead(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Interview, len(raw))
	for i, id := range ids {
		if v, ok := raw[keys[i]]; ok {
			out[id] = v.(model.Interview)
		}
	}
	return out, nil
}

func (s *Stores) PutTasks(ctx context.Context, jobID string, tasks []model.Task) error {
	items := make(map[string]any, len(tasks))
	for _, t := range tasks {
		items[storage.Keys.Task(jobID, t.InterviewID, t.ID)] = t
	}
	return s.st.Persistent().BatchWrite(ctx, items)
}

func (s *Stores) GetTask(ctx context.Context, jobID, interviewID, taskID string) (model.Task, bool, error) {
	v, ok, err := s.st.Persistent().Read(ctx, storage.Keys.Task(jobID, interviewID, taskID))
	if err != nil || !ok {
		return model.Task{}, ok, err
	}
	return v.(model.Task), true, nil
}

// BatchSetTaskLocations records, for every task id, which job+interview
// it belongs to, so a bare task id popped from the ready set can be
// resolved to its definition without a SCAN.
func (s *Stores) BatchSetTaskLocations(ctx context.Context, locations map[string]model.TaskLocation) error {
	items := make(map[string]any, len(locations))
	for id, loc := range locations {
		items[storage.Keys.TaskLocation(id)] = loc
	}
	return s.st.Volatile().BatchWrite(ctx, items)
}

// GetTaskLocations batch-resolves task ids to their (job, interview).
func (s *Stores) GetTaskLocations(ctx context.Context, taskIDs []string) (map[string]model.TaskLocation, error) {
	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = storage.Keys.TaskLocation(id)
	}
	raw, err := s.st.Volatile().BatchRead(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.TaskLocation, len(raw))
	for i, id := range taskIDs {
		if v, ok := raw[keys[i]]; ok {
			out[id] = v.(model.TaskLocation)
		}
	}
	return out, nil
}

// PutJobResources persists the job's shared resources (scenarios,
// agents, models, questions) under their own keys in one batch write,
// so collaborating processes can fetch exactly the ids a batch
// references instead of re-reading the whole job definition.
func (s *Stores) PutJobResources(ctx context.Context, job model.Job) error {
	items := make(map[string]any, len(job.Scenarios)+len(job.Agents)+len(job.Models)+len(job.Questions))
	for id, sc := range job.Scenarios {
		items[storage.Keys.JobScenario(job.ID, id)] = sc
	}
	for id, ag := range job.Agents {
		items[storage.Keys.JobAgent(job.ID, id)] = ag
	}
	for id, md := range job.Models {
		items[storage.Keys.JobModel(job.ID, id)] = md
	}
	for id, q := range job.Questions {
		items[storage.Keys.JobQuestion(job.ID, id)] = q
	}
	return s.st.Persistent().BatchWrite(ctx, items)
}

// PutSurvey persists the submitted survey definition under the job.
func (s *Stores) PutSurvey(ctx context.Context, jobID string, survey model.Survey) error {
	return s.st.Persistent().Write(ctx, storage.Keys.JobSurvey(jobID), survey)
}

// GetSurvey reads back the survey definition persisted at submit time.
func (s *Stores) GetSurvey(ctx context.Context, jobID string) (model.Survey, bool, error) {
	v, ok, err := s.st.Persistent().Read(ctx, storage.Keys.JobSurvey(jobID))
	if err != nil || !ok {
		return model.Survey{}, ok, err
	}
	return v.(model.Survey), true, nil
}

func (s *Stores) GetTasks(ctx context.Context, keyOf func(id string) string, ids []string) (map[string]model.Task, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyOf(id)
	}
	raw, err := s.st.Persistent().BatchRead(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Task, len(raw))
	for i, id := range ids {
		if v, ok := raw[keys[i]]; ok {
			out[id] = v.(model.Task)
		}
	}
	return out, nil
}

// --- volatile task state ---

func (s *Stores) InitTaskState(ctx context.Context, taskID string, state model.TaskState) error {
	return s.InitTaskStates(ctx, map[string]model.TaskState{taskID: state})
}

// InitTaskStates seeds the volatile state for a whole submission's
// tasks in one batch write.
func (s *Stores) InitTaskStates(ctx context.Context, states map[string]model.TaskState) error {
	items := make(map[string]any, 3*len(states))
	for taskID, state := range states {
		items[storage.Keys.TaskStatus(taskID)] = state.Status
		items[storage.Keys.TaskUnmetDeps(taskID)] = state.UnmetDeps
		items[storage.Keys.TaskAttempts(taskID)] = state.Attempts
	}
	return s.st.Volatile().BatchWrite(ctx, items)
}

func (s *Stores) GetTaskStatus(ctx context.Context, taskID string) (model.TaskStatus, error) {
	v, ok, err := s.st.Volatile().Read(ctx, storage.Keys.TaskStatus(taskID))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: task status %s", ErrNotFound, taskID)
	}
	return v.(model.TaskStatus), nil
}

func (s *Stores) SetTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	return s.st.Volatile().Write(ctx, storage.Keys.TaskStatus(taskID), status)
}

func (s *Stores) BatchSetTaskStatus(ctx context.Context, taskIDs []string, status model.TaskStatus) error {
	items := make(map[string]any, len(taskIDs))
	for _, id := range taskIDs {
		items[storage.Keys.TaskStatus(id)] = status
	}
	return s.st.Volatile().BatchWrite(ctx, items)
}

// GetTaskStatuses batch-reads the status of every listed task. Tasks
// with no recorded status are absent from the result.
func (s *Stores) GetTaskStatuses(ctx context.Context, taskIDs []string) (map[string]model.TaskStatus, error) {
	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = storage.Keys.TaskStatus(id)
	}
	raw, err := s.st.Volatile().BatchRead(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.TaskStatus, len(raw))
	for i, id := range taskIDs {
		if v, ok := raw[keys[i]].(model.TaskStatus); ok {
			out[id] = v
		}
	}
	return out, nil
}

// DecrementUnmetDeps atomically decrements the dependent's unmet_deps
// counter and returns its new value; the caller that sees zero owns
// the PENDING -> READY transition.
func (s *Stores) DecrementUnmetDeps(ctx context.Context, taskID string) (int, error) {
	return s.st.Volatile().Increment(ctx, storage.Keys.TaskUnmetDeps(taskID), -1)
}

func (s *Stores) RecordAttempt(ctx context.Context, taskID string, kind model.ErrorKind) (int, error) {
	return s.st.Volatile().Increment(ctx, storage.Keys.TaskAttempts(taskID)+":"+string(kind), 1)
}

// GetAttempts reads the attempt count recorded for one error kind on a
// task, 0 if none.
func (s *Stores) GetAttempts(ctx context.Context, taskID string, kind model.ErrorKind) (int, error) {
	v, ok, err := s.st.Volatile().Read(ctx, storage.Keys.TaskAttempts(taskID)+":"+string(kind))
	if err != nil || !ok {
		return 0, err
	}
	return intOr(v), nil
}

func (s *Stores) SetLastError(ctx context.Context, taskID string, lastErr model.TaskLastError) error {
	return s.st.Volatile().Write(ctx, storage.Keys.TaskLastError(taskID), lastErr)
}

func (s *Stores) GetLastError(ctx context.Context, taskID string) (model.TaskLastError, bool, error) {
	v, ok, err := s.st.Volatile().Read(ctx, storage.Keys.TaskLastError(taskID))
	if err != nil || !ok {
		return model.TaskLastError{}, ok, err
	}
	return v.(model.TaskLastError), true, nil
}

// --- interview counters ---

func (s *Stores) IncrementInterviewCounter(ctx context.Context, interviewID, counter string) (int, error) {
	var key string
	switch counter {
	case "completed":
		key = storage.Keys.InterviewCompleted(interviewID)
	case "skipped":
		key = storage.Keys.InterviewSkipped(interviewID)
	case "failed":
		key = storage.Keys.InterviewFailed(interviewID)
	case "blocked":
		key = storage.Keys.InterviewBlocked(interviewID)
	default:
		return 0, fmt.Errorf("%w: unknown interview counter %q", ErrInvalidInput, counter)
	}
	return s.st.Volatile().Increment(ctx, key, 1)
}

// GetInterviewCountersBatch reads every listed interview's four
// counters in a single batch round.
func (s *Stores) GetInterviewCountersBatch(ctx context.Context, interviewIDs []string) (map[string]model.InterviewCounters, error) {
	keys := make([]string, 0, 4*len(interviewIDs))
	for _, id := range interviewIDs {
		keys = append(keys,
			storage.Keys.InterviewCompleted(id),
			storage.Keys.InterviewSkipped(id),
			storage.Keys.InterviewFailed(id),
			storage.Keys.InterviewBlocked(id),
		)
	}
	raw, err := s.st.Volatile().BatchRead(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.InterviewCounters, len(interviewIDs))
	for i, id := range interviewIDs {
		out[id] = model.InterviewCounters{
			Completed: intOr(raw[keys[4*i]]),
			Skipped:   intOr(raw[keys[4*i+1]]),
			Failed:    intOr(raw[keys[4*i+2]]),
			Blocked:   intOr(raw[keys[4*i+3]]),
		}
	}
	return out, nil
}

func (s *Stores) GetInterviewCounters(ctx context.Context, interviewID string) (model.InterviewCounters, error) {
	keys := []string{
		storage.Keys.InterviewCompleted(interviewID),
		storage.Keys.InterviewSkipped(interviewID),
		storage.Keys.InterviewFailed(interviewID),
		storage.Keys.InterviewBlocked(interviewID),
	}
	raw, err := s.st.Volatile().BatchRead(ctx, keys)
	if err != nil {
		return model.InterviewCounters{}, err
	}
	return model.InterviewCounters{
		Completed: intOr(raw[keys[0]]),
		Skipped:   intOr(raw[keys[1]]),
		Failed:    intOr(raw[keys[2]]),
		Blocked:   intOr(raw[keys[3]]),
	}, nil
}

func (s *Stores) SetInterviewState(ctx context.Context, interviewID string, state model.InterviewState) error {
	return s.st.Volatile().Write(ctx, storage.Keys.InterviewState(interviewID), state)
}

// --- job counters ---

func (s *Stores) IncrementJobCounter(ctx context.Context, jobID, counter string) (int, error) {
	var key string
	switch counter {
	case "completed_interviews":
		key = storage.Keys.JobCompletedInterviews(jobID)
	case "failed_interviews":
		key = storage.Keys.JobFailedInterviews(jobID)
	default:
		return 0, fmt.Errorf("%w: unknown job counter %q", ErrInvalidInput, counter)
	}
	return s.st.Volatile().Increment(ctx, key, 1)
}

func (s *Stores) GetJobCounters(ctx context.Context, jobID string) (model.JobCounters, error) {
	keys := []string{storage.Keys.JobCompletedInterviews(jobID), storage.Keys.JobFailedInterviews(jobID), storage.Keys.JobState(jobID)}
	raw, err := s.st.Volatile().BatchRead(ctx, keys)
	if err != nil {
		return model.JobCounters{}, err
	}
	state, _ := raw[keys[2]].(model.JobState)
	if state == "" {
		state = model.JobRunning
	}
	return model.JobCounters{
		CompletedInterviews: intOr(raw[keys[0]]),
		FailedInterviews:    intOr(raw[keys[1]]),
		State:               state,
	}, nil
}

func (s *Stores) SetJobState(ctx context.Context, jobID string, state model.JobState) error {
	return s.st.Volatile().Write(ctx, storage.Keys.JobState(jobID), state)
}

// --- ready set & counted interviews ---

func (s *Stores) AddReady(ctx context.Context, jobID, taskID string) error {
	_, err := s.st.Sets().Add(ctx, storage.Keys.JobReadyTasks(jobID), taskID)
	return err
}

func (s *Stores) AddReadyBatch(ctx context.Context, jobID string, taskIDs []string) error {
	_, err := s.st.Sets().AddMultiple(ctx, storage.Keys.JobReadyTasks(jobID), taskIDs)
	return err
}

func (s *Stores) PopReady(ctx context.Context, jobID string, n int) ([]string, error) {
	return s.st.Sets().PopMultiple(ctx, storage.Keys.JobReadyTasks(jobID), n)
}

// CreditInterview returns true iff this call is the one that inserted
// interviewID into the job's counted-interviews set (the serialization
// point for "credited exactly once").
func (s *Stores) CreditInterview(ctx context.Context, jobID, interviewID string) (bool, error) {
	return s.st.Sets().Add(ctx, storage.Keys.JobCountedInterviews(jobID), interviewID)
}

func (s *Stores) CountedInterviews(ctx context.Context, jobID string) (int, error) {
	return s.st.Sets().Size(ctx, storage.Keys.JobCountedInterviews(jobID))
}

// --- answers ---

func (s *Stores) PutAnswer(ctx context.Context, a model.Answer) error {
	key := storage.Keys.Answer(a.JobID, a.InterviewID, a.QuestionName)
	if err := s.st.Persistent().Write(ctx, key, a); err != nil {
		return err
	}
	return s.st.Volatile().Write(ctx, key, a)
}

func (s *Stores) GetAnswer(ctx context.Context, jobID, interviewID, questionName string) (model.Answer, bool, error) {
	key := storage.Keys.Answer(jobID, interviewID, questionName)
	v, ok, err := s.st.Volatile().Read(ctx, key)
	if err != nil || !ok {
		return model.Answer{}, ok, err
	}
	return v.(model.Answer), true, nil
}

func (s *Stores) GetAnswersBatch(ctx context.Context, jobID, interviewID string, questionNames []string) (map[string]model.Answer, error) {
	keys := make([]string, len(questionNames))
	for i, q := range questionNames {
		keys[i] = storage.Keys.Answer(jobID, interviewID, q)
	}
	raw, err := s.st.Volatile().BatchRead(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Answer, len(raw))
	for i, q := range questionNames {
		if v, ok := raw[keys[i]]; ok {
			out[q] = v.(model.Answer)
		}
	}
	return out, nil
}

func intOr(v any) int {
	if n, ok := v.(int); ok {
		return n
	}
	return 0
}
