// Package api provides the HTTP control surface for the job execution
// engine: submit/status/progress/results/errors/cancel/wait exposed
// over gin-gonic.
package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/worker"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	svc        *jobservice.Service
	workerPool *worker.Pool // nil if this process runs no local workers
	backend    string
	onSubmit   func(jobID string) // optional hook for a driver tracking active jobs
}

// NewServer constructs a Server with routes registered.
func NewServer(svc *jobservice.Service, backend string) *Server {
	s := &Server{
		engine:  gin.Default(),
		svc:     svc,
		backend: backend,
	}
	s.setupRoutes()
	return s
}

// SetWorkerPool wires the local execution worker pool into the health
// endpoint. Optional: a pure-submitter process has none.
func (s *Server) SetWorkerPool(p *worker.Pool) {
	s.workerPool = p
}

// SetOnSubmit registers a callback invoked with a job's id right after
// it is accepted, so a process driving render/coordinator loops
// in-process can learn which jobs exist without polling storage for a
// job list the core doesn't otherwise maintain.
func (s *Server) SetOnSubmit(fn func(jobID string)) {
	s.onSubmit = fn
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/jobs", s.submitJobHandler)
	v1.GET("/jobs/:id/status", s.jobStatusHandler)
	v1.GET("/jobs/:id/progress", s.jobProgressHandler)
	v1.GET("/jobs/:id/results", s.jobResultsHandler)
	v1.GET("/jobs/:id/errors", s.jobErrorsHandler)
	v1.POST("/jobs/:id/cancel", s.cancelJobHandler)
	v1.POST("/jobs/:id/wait", s.waitJobHandler)
}

// Handler exposes the underlying gin engine for tests that want to
// drive requests through httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.engine }

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// for tests that want a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
