package jobservice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

type fakeRules struct {
	nonDefault []int
	skipBefore bool
	next       NextQuestionResult
}

func (f fakeRules) NonDefaultRules() []int { return f.nonDefault }
func (f fakeRules) SkipQuestionBeforeRunning(index int, answers map[string]any) bool {
	return f.skipBefore
}
func (f fakeRules) NextQuestion(index int, answers map[string]any) NextQuestionResult { return f.next }

func baseSkipSurvey() *model.Survey {
	return &model.Survey{
		Questions: []model.Question{
			{Name: "q1", Index: 0},
			{Name: "q2", Index: 1},
			{Name: "q3", Index: 2},
		},
	}
}

func TestEvaluateSkip_FirstQuestionNeverSkips(t *testing.T) {
	cache := &SkipCache{
		Survey:      baseSkipSurvey(),
		Rules:       fakeRules{nonDefault: []int{1}},
		QuestionIdx: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	}
	res := EvaluateSkip(cache, "iv-1", "q1", nil)
	assert.False(t, res.Skip)
}

func TestEvaluateSkip_NoUserRulesFastPath(t *testing.T) {
	cache := &SkipCache{
		Survey:      baseSkipSurvey(),
		Rules:       fakeRules{nonDefault: nil},
		QuestionIdx: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	}
	res := EvaluateSkip(cache, "iv-1", "q2", map[string]any{"q1": nil})
	assert.False(t, res.Skip, "no non-default rules means never skip, even with a null dependency")
}

func TestEvaluateSkip_NullMemoryDependencySkips(t *testing.T) {
	cache := &SkipCache{
		Survey: &model.Survey{
			Questions:  baseSkipSurvey().Questions,
			MemoryPlan: map[string][]string{"q2": {"q1"}},
		},
		Rules:       fakeRules{nonDefault: []int{1}},
		QuestionIdx: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	}
	res := EvaluateSkip(cache, "iv-1", "q2", map[string]any{"q1": nil})
	assert.True(t, res.Skip)
	assert.Contains(t, res.Reason, "Memory dependency")
}

func TestEvaluateSkip_SkipQuestionBeforeRunning(t *testing.T) {
	cache := &SkipCache{
		Survey:      baseSkipSurvey(),
		Rules:       fakeRules{nonDefault: []int{1}, skipBefore: true},
		QuestionIdx: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	}
	res := EvaluateSkip(cache, "iv-1", "q2", map[string]any{})
	assert.True(t, res.Skip)
	assert.Contains(t, res.Reason, "skip_question_before_running")
}

func TestEvaluateSkip_EndOfSurveyReached(t *testing.T) {
	cache := &SkipCache{
		Survey:      baseSkipSurvey(),
		Rules:       fakeRules{nonDefault: []int{1}, next: NextQuestionResult{EndOfSurvey: true}},
		QuestionIdx: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	}
	res := EvaluateSkip(cache, "iv-1", "q2", map[string]any{})
	assert.True(t, res.Skip)
	assert.Equal(t, "EndOfSurvey reached", res.Reason)
}

func TestEvaluateSkip_JumpAheadSkipsIntermediateQuestion(t *testing.T) {
	cache := &SkipCache{
		Survey:      baseSkipSurvey(),
		Rules:       fakeRules{nonDefault: []int{1}, next: NextQuestionResult{NextIndex: 2}},
		QuestionIdx: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	}
	res := EvaluateSkip(cache, "iv-1", "q2", map[string]any{})
	assert.True(t, res.Skip)
	assert.Equal(t, "Skip rule: jump from 0 to 2", res.Reason)
}

func TestEvaluateSkip_NoJumpDoesNotSkip(t *testing.T) {
	cache := &SkipCache{
		Survey:      baseSkipSurvey(),
		Rules:       fakeRules{nonDefault: []int{1}, next: NextQuestionResult{NextIndex: 1}},
		QuestionIdx: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	}
	res := EvaluateSkip(cache, "iv-1", "q2", map[string]any{})
	assert.False(t, res.Skip)
}

func TestCombineAnswers_PrecedenceOrder(t *testing.T) {
	combined := CombineAnswers(
		map[string]any{"color": "from-prior", "only-prior": true},
		map[string]any{"color": "from-scenario", "only-scenario": true},
		map[string]any{"color": "from-agent", "only-agent": true},
	)
	assert.Equal(t, "from-prior", combined["color"], "prior answers must win on collision")
	assert.Equal(t, true, combined["only-prior"])
	assert.Equal(t, true, combined["only-scenario"])
	assert.Equal(t, true, combined["only-agent"])
}
