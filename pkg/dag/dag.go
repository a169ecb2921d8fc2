// Package dag extracts the question-name dependency graph from a
// survey and validates it at submit time.
package dag

import (
	"errors"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// ErrCyclicSurvey is returned by Extract when the survey's question
// graph, including implicit rule-ordering edges, contains a cycle.
var ErrCyclicSurvey = errors.New("survey question graph contains a cycle")

// Extract converts the survey's question-index DAG into a question-name
// DAG, then adds an implicit prerequisite edge from question_i to every
// question at index > i for each user-defined routing rule at index i
// (so skip evaluation can see the gating answer). ruleIndices is the
// set of question indices that carry a non-default routing rule.
func Extract(survey *model.Survey, indexDAG model.QuestionIndexDAG, ruleIndices []int) (model.QuestionNameDAG, error) {
	byIndex := make(map[int]string, len(survey.Questions))
	for _, q := range survey.Questions {
		byIndex[q.Index] = q.Name
	}

	nameDAG := make(model.QuestionNameDAG, len(survey.Questions))
	for idx, prereqs := range indexDAG {
		name, ok := byIndex[idx]
		if !ok {
			continue
		}
		for _, p := range prereqs {
			if pname, ok := byIndex[p]; ok {
				nameDAG[name] = appendUnique(nameDAG[name], pname)
			}
		}
	}

	for _, ruleIdx := range ruleIndices {
		for _, q := range survey.Questions {
			if q.Index > ruleIdx {
				if gating, ok := byIndex[ruleIdx]; ok {
					nameDAG[q.Name] = appendUnique(nameDAG[q.Name], gating)
				}
			}
		}
	}

	if err := checkAcyclic(nameDAG); err != nil {
		return nil, err
	}
	return nameDAG, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// checkAcyclic runs Kahn's algorithm: repeatedly remove nodes with zero
// remaining in-degree; if any nodes remain once no more can be removed,
// the graph has a cycle.
func checkAcyclic(g model.QuestionNameDAG) error {
	nodes := make(map[string]struct{})
	for name, prereqs := range g {
		nodes[name] = struct{}{}
		for _, p := range prereqs {
			nodes[p] = struct{}{}
		}
	}

	indegree := make(map[string]int, len(nodes))
	for n := range nodes {
		indegree[n] = 0
	}
	// indegree here counts prerequisites still owed by n (i.e. len(g[n])),
	// since g[n] lists n's prerequisites, not n's dependents.
	for n := range nodes {
		indegree[n] = len(g[n])
	}
	// dependents[p] = questions that list p as a prerequisite
	dependents := make(map[string][]string)
	for n, prereqs := range g {
		for _, p := range prereqs {
			dependents[p] = append(dependents[p], n)
		}
	}

	queue := make([]string, 0, len(nodes))
	for n, deg := range indegree {
		if deg == 0 {
			queue = append(queue, n)
		}
	}

	removed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		removed++
		for _, d := range dependents[n] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if removed != len(nodes) {
		return ErrCyclicSurvey
	}
	return nil
}

// ProjectToTasks converts the question-name DAG into task-id depends_on
// (forward) and dependents (reverse) edges scoped to one interview,
// given the question-name -> task-id mapping for that interview.
func ProjectToTasks(nameDAG model.QuestionNameDAG, taskIDByQuestion map[string]string) (dependsOn, dependents map[string][]string) {
	dependsOn = make(map[string][]string, len(taskIDByQuestion))
	dependents = make(map[string][]string, len(taskIDByQuestion))

	for qname, taskID := range taskIDByQuestion {
		for _, prereqName := range nameDAG[qname] {
			prereqTaskID, ok := taskIDByQuestion[prereqName]
			if !ok {
				continue
			}
			dependsOn[taskID] = append(dependsOn[taskID], prereqTaskID)
			dependents[prereqTaskID] = append(dependents[prereqTaskID], taskID)
		}
	}
	return dependsOn, dependents
}
