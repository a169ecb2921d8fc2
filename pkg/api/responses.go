package api

import (
	"github.com/codeready-toolchain/jobrunner/pkg/version"
	"github.com/codeready-toolchain/jobrunner/pkg/worker"
)

// SubmitJobResponse is returned by POST /api/v1/jobs.
type SubmitJobResponse struct {
	JobID           string `json:"job_id"`
	TotalInterviews int    `json:"total_interviews"`
}

// HealthResponse is returned by GET /health: overall status, version,
// and per-subsystem detail.
type HealthResponse struct {
	Status     string          `json:"status"`
	Version    string          `json:"version"`
	Backend    string          `json:"storage_backend"`
	WorkerPool []worker.Health `json:"worker_pool,omitempty"`
}

func newHealthResponse(backend string, pool []worker.Health) HealthResponse {
	return HealthResponse{
		Status:     "healthy",
		Version:    version.Full(),
		Backend:    backend,
		WorkerPool: pool,
	}
}
