package dag

import (
	"testing"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearSurvey() *model.Survey {
	return &model.Survey{
		Questions: []model.Question{
			{Name: "q1", Index: 0},
			{Name: "q2", Index: 1},
			{Name: "q3", Index: 2},
		},
	}
}

func TestExtract_LinearChain(t *testing.T) {
	s := linearSurvey()
	indexDAG := model.QuestionIndexDAG{1: {0}, 2: {1}}
	g, err := Extract(s, indexDAG, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, g["q2"])
	assert.Equal(t, []string{"q2"}, g["q3"])
}

func TestExtract_ImplicitRuleOrderingEdges(t *testing.T) {
	s := linearSurvey()
	g, err := Extract(s, model.QuestionIndexDAG{}, []int{0})
	require.NoError(t, err)
	assert.Contains(t, g["q2"], "q1")
	assert.Contains(t, g["q3"], "q1")
}

func TestExtract_RejectsCycle(t *testing.T) {
	s := linearSurvey()
	indexDAG := model.QuestionIndexDAG{0: {2}, 1: {0}, 2: {1}}
	_, err := Extract(s, indexDAG, nil)
	assert.ErrorIs(t, err, ErrCyclicSurvey)
}

func TestProjectToTasks(t *testing.T) {
	nameDAG := model.QuestionNameDAG{"q2": {"q1"}, "q3": {"q2"}}
	taskIDs := map[string]string{"q1": "t1", "q2": "t2", "q3": "t3"}

	dependsOn, dependents := ProjectToTasks(nameDAG, taskIDs)
	assert.Equal(t, []string{"t1"}, dependsOn["t2"])
	assert.Equal(t, []string{"t2"}, dependsOn["t3"])
	assert.Equal(t, []string{"t2"}, dependents["t1"])
	assert.Equal(t, []string{"t3"}, dependents["t2"])
}
