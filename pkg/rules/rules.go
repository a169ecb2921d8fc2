// Package rules provides the default (no user-defined branching logic)
// implementation of jobservice.RuleCollection, plus a client-side
// registry mapping job ids to their survey's rule capability.
//
// Rule evaluation is a capability the engine consumes, not a state
// machine it reimplements. Like the direct-answer callables, a concrete
// RuleCollection is not generally serializable across nodes, so it
// lives on the submitting client and is looked up by job id rather
// than persisted.
package rules

import (
	"sync"

	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
)

// Default implements jobservice.RuleCollection for a survey with only
// the implicit "go to next question" ordering: NonDefaultRules is
// empty so skip-logic evaluation takes its no-rules fast path, and
// NextQuestion always advances by one.
type Default struct {
	QuestionCount int
}

func (d Default) NonDefaultRules() []int { return nil }

func (d Default) SkipQuestionBeforeRunning(int, map[string]any) bool { return false }

func (d Default) NextQuestion(index int, _ map[string]any) jobservice.NextQuestionResult {
	next := index + 1
	if next >= d.QuestionCount {
		return jobservice.NextQuestionResult{EndOfSurvey: true}
	}
	return jobservice.NextQuestionResult{NextIndex: next}
}

// Registry maps job ids to the RuleCollection their survey was
// submitted with, so a single render driver can serve many concurrent
// jobs without threading the capability through every call site.
type Registry struct {
	mu    sync.Mutex
	byJob map[string]jobservice.RuleCollection
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byJob: make(map[string]jobservice.RuleCollection)}
}

// Register associates rc with jobID, overwriting any prior
// registration.
func (r *Registry) Register(jobID string, rc jobservice.RuleCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byJob[jobID] = rc
}

// Unregister drops jobID's entry, called once the job reaches a
// terminal state.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byJob, jobID)
}

// Get returns jobID's registered RuleCollection, falling back to
// Default{questionCount} if none was registered; this is the common
// case for a survey with no branching rules at all.
func (r *Registry) Get(jobID string, questionCount int) jobservice.RuleCollection {
	r.mu.Lock()
	rc, ok := r.byJob[jobID]
	r.mu.Unlock()
	if ok {
		return rc
	}
	return Default{QuestionCount: questionCount}
}
