package jobservice

import (
	"context"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// NextQuestionResult is the outcome of RuleCollection.NextQuestion: a
// concrete next index, or the sentinel EndOfSurvey.
type NextQuestionResult struct {
	NextIndex   int
	EndOfSurvey bool
}

// RuleCollection is the opaque branching-logic capability. The engine
// treats rule evaluation as something it consumes, not a state machine
// to reimplement.
type RuleCollection interface {
	// NonDefaultRules reports the question indices carrying a
	// user-defined routing rule (as opposed to the implicit "go to
	// next question" default). An empty result enables the skip-logic
	// fast path.
	NonDefaultRules() []int
	SkipQuestionBeforeRunning(index int, answers map[string]any) bool
	NextQuestion(index int, answers map[string]any) NextQuestionResult
}

// PromptRenderer is the opaque prompt-rendering capability. Its
// template engine, memory plan, and option-permutation handling are
// inputs to the engine, not part of it.
type PromptRenderer interface {
	Render(ctx context.Context, scenario model.Scenario, agent model.Agent, modelSpec model.ModelSpec, question model.Question, priorAnswers map[string]any) (systemPrompt, userPrompt string, filesList []any, err error)
}

// DirectAnswerFunc answers an AGENT_DIRECT or FUNCTIONAL task locally,
// bypassing render and the queue entirely.
type DirectAnswerFunc func(ctx context.Context) (answer any, comment string, err error)
