package api

import (
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// SubmitJobRequest is the wire shape of POST /api/v1/jobs. It mirrors
// jobservice.SubmitRequest; toServiceRequest copies it across field by
// field.
type SubmitJobRequest struct {
	UserID string `json:"user_id"`

	Survey           model.Survey           `json:"survey" binding:"required"`
	QuestionIndexDAG model.QuestionIndexDAG `json:"question_index_dag"`
	RuleIndices      []int                  `json:"rule_indices"`

	Scenarios []model.Scenario  `json:"scenarios" binding:"required"`
	Agents    []model.Agent     `json:"agents" binding:"required"`
	Models    []model.ModelSpec `json:"models" binding:"required"`

	Iterations      int                    `json:"iterations"`
	RetryPolicy     model.RetryPolicyTable `json:"retry_policy"`
	StopOnException bool                   `json:"stop_on_exception"`
	Cache           bool                   `json:"cache"`
}

// toServiceRequest converts the wire request into jobservice.SubmitRequest,
// defaulting Iterations to 1 the way a single-shot job submission expects.
func (r SubmitJobRequest) toServiceRequest() jobservice.SubmitRequest {
	iterations := r.Iterations
	if iterations <= 0 {
		iterations = 1
	}
	return jobservice.SubmitRequest{
		UserID:           r.UserID,
		Survey:           r.Survey,
		QuestionIndexDAG: r.QuestionIndexDAG,
		RuleIndices:      r.RuleIndices,
		Scenarios:        r.Scenarios,
		Agents:           r.Agents,
		Models:           r.Models,
		Iterations:       iterations,
		RetryPolicy:      r.RetryPolicy,
		StopOnException:  r.StopOnException,
		Cache:            r.Cache,
	}
}
