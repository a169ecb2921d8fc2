package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/worker"
)

// durationQueryParam reads an integer-milliseconds query parameter,
// returning zero if absent or malformed (callers treat zero as "use
// the default").
func durationQueryParam(c *gin.Context, name string) time.Duration {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// submitJobHandler handles POST /api/v1/jobs.
func (s *Server) submitJobHandler(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.svc.Submit(c.Request.Context(), req.toServiceRequest())
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if s.onSubmit != nil {
		s.onSubmit(job.ID)
	}

	c.JSON(http.StatusAccepted, SubmitJobResponse{JobID: job.ID, TotalInterviews: job.TotalInterviews})
}

// jobStatusHandler handles GET /api/v1/jobs/:id/status.
func (s *Server) jobStatusHandler(c *gin.Context) {
	status, err := s.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// jobProgressHandler handles GET /api/v1/jobs/:id/progress.
func (s *Server) jobProgressHandler(c *gin.Context) {
	progress, err := s.svc.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// jobResultsHandler handles GET /api/v1/jobs/:id/results.
func (s *Server) jobResultsHandler(c *gin.Context) {
	results, err := s.svc.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// jobErrorsHandler handles GET /api/v1/jobs/:id/errors.
func (s *Server) jobErrorsHandler(c *gin.Context) {
	errs, err := s.svc.Errors(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": errs})
}

// cancelJobHandler handles POST /api/v1/jobs/:id/cancel.
func (s *Server) cancelJobHandler(c *gin.Context) {
	if err := s.svc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// waitJobHandler handles POST /api/v1/jobs/:id/wait. timeout_ms and
// poll_interval_ms are optional query parameters; zero/absent means
// jobservice's own defaults (wait indefinitely / 500ms poll).
func (s *Server) waitJobHandler(c *gin.Context) {
	timeout := durationQueryParam(c, "timeout_ms")
	pollInterval := durationQueryParam(c, "poll_interval_ms")

	status, err := s.svc.Wait(c.Request.Context(), c.Param("id"), timeout, pollInterval)
	if err != nil {
		if err == jobservice.ErrWaitTimeout {
			c.JSON(http.StatusRequestTimeout, gin.H{"error": err.Error(), "status": status})
			return
		}
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	var pool []worker.Health
	if s.workerPool != nil {
		pool = s.workerPool.Health()
	}
	c.JSON(http.StatusOK, newHealthResponse(s.backend, pool))
}
