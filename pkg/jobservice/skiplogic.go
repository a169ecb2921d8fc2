package jobservice

import (
	"fmt"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// SkipCache amortizes the per-batch lookups a render pass needs to
// evaluate skip logic without re-fetching the survey or prior answers
// per task.
type SkipCache struct {
	Survey       *model.Survey
	Rules        RuleCollection
	QuestionIdx  map[string]int            // question name -> index
	PriorAnswers map[string]map[string]any // interview id -> question name -> answer value
}

// SkipResult is the outcome of evaluating skip logic for one task.
type SkipResult struct {
	Skip   bool
	Reason string
}

// EvaluateSkip decides whether a task should be skipped, in order:
//  1. the first question in the survey is never skipped
//  2. a survey with no user-defined rules never skips (fast path)
//  3. a failed (null-valued) memory dependency skips with a specific reason
//  4. the rule collection's own skip/next-question evaluation
func EvaluateSkip(cache *SkipCache, interviewID, questionName string, combinedAnswers map[string]any) SkipResult {
	idx, ok := cache.QuestionIdx[questionName]
	if !ok {
		return SkipResult{}
	}
	if idx == 0 {
		return SkipResult{}
	}
	if len(cache.Rules.NonDefaultRules()) == 0 {
		return SkipResult{}
	}

	for _, dep := range cache.Survey.MemoryPlan[questionName] {
		if v, present := combinedAnswers[dep]; present && v == nil {
			return SkipResult{Skip: true, Reason: fmt.Sprintf("Memory dependency '%s' failed", dep)}
		}
	}

	if cache.Rules.SkipQuestionBeforeRunning(idx, combinedAnswers) {
		return SkipResult{Skip: true, Reason: "Skip rule: skip_question_before_running"}
	}

	next := cache.Rules.NextQuestion(idx-1, combinedAnswers)
	if next.EndOfSurvey {
		return SkipResult{Skip: true, Reason: "EndOfSurvey reached"}
	}
	if next.NextIndex > idx {
		return SkipResult{Skip: true, Reason: fmt.Sprintf("Skip rule: jump from %d to %d", idx-1, next.NextIndex)}
	}
	return SkipResult{}
}

// CombineAnswers builds the combined answer namespace skip evaluation
// runs against: prior answers override scenario fields, which override
// agent traits (later sources win on key collision, matching how the
// render capability composes the same namespace for templating).
func CombineAnswers(priorAnswers map[string]any, scenarioFields map[string]any, agentTraits map[string]any) map[string]any {
	combined := make(map[string]any, len(priorAnswers)+len(scenarioFields)+len(agentTraits))
	for k, v := range agentTraits {
		combined[k] = v
	}
	for k, v := range scenarioFields {
		combined[k] = v
	}
	for k, v := range priorAnswers {
		combined[k] = v
	}
	return combined
}
