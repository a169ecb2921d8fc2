package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/coordinator"
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/workerregistry"
)

// PoolConfig bounds the Pool's size and polling behavior.
type PoolConfig struct {
	PodID             string
	MinWorkers        int
	MaxWorkers        int
	IdleTimeout       time.Duration
	IdleTimeoutJitter time.Duration
}

// Pool is a fixed-to-growable set of execution Workers sharing one
// coordinator, Job Service, LLM client, and (optionally) Worker
// Registry.
type Pool struct {
	cfg      PoolConfig
	coord    *coordinator.Coordinator
	svc      *jobservice.Service
	llm      LLMClient
	registry *workerregistry.Registry

	mu      sync.Mutex
	workers []*Worker
	started bool
}

// NewPool constructs a Pool that will spawn cfg.MinWorkers workers on
// Start and allows growth up to cfg.MaxWorkers via Grow.
func NewPool(cfg PoolConfig, coord *coordinator.Coordinator, svc *jobservice.Service, llm LLMClient, registry *workerregistry.Registry) *Pool {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	return &Pool{cfg: cfg, coord: coord, svc: svc, llm: llm, registry: registry}
}

// Start spawns MinWorkers execution workers.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("execution worker pool already started, ignoring duplicate Start call", "pod_id", p.cfg.PodID)
		return
	}
	p.started = true

	if p.registry != nil {
		if err := p.reconcileOrphans(ctx); err != nil {
			slog.Error("startup orphan reconciliation failed", "pod_id", p.cfg.PodID, "error", err)
		}
	}

	slog.Info("starting execution worker pool", "pod_id", p.cfg.PodID, "worker_count", p.cfg.MinWorkers)
	for i := 0; i < p.cfg.MinWorkers; i++ {
		p.spawnLocked(ctx, i)
	}
}

// reconcileOrphans resets tasks left RUNNING under this pod's own
// prior worker IDs back to ready, so a crash-restart under the same
// pod ID doesn't strand them waiting on a heartbeat timeout that will
// never fire once this pod's new workers reuse those same IDs.
func (p *Pool) reconcileOrphans(ctx context.Context) error {
	orphans, err := p.registry.OrphansForPod(ctx, p.cfg.PodID)
	if err != nil {
		return err
	}
	for _, o := range orphans {
		if err := p.svc.Stores().SetTaskStatus(ctx, o.TaskID, model.TaskReady); err != nil {
			return err
		}
		if err := p.svc.Stores().AddReady(ctx, o.JobID, o.TaskID); err != nil {
			return err
		}
		if err := p.registry.Cleanup(ctx, o.WorkerID); err != nil {
			return err
		}
		slog.Warn("recovered orphaned task from prior pod instance",
			"pod_id", p.cfg.PodID, "worker_id", o.WorkerID, "task_id", o.TaskID)
	}
	if len(orphans) > 0 {
		slog.Info("startup orphan cleanup complete", "pod_id", p.cfg.PodID, "recovered", len(orphans))
	}
	return nil
}

// Grow adds one more worker up to MaxWorkers, returning false if
// already at capacity.
func (p *Pool) Grow(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) >= p.cfg.MaxWorkers {
		return false
	}
	p.spawnLocked(ctx, len(p.workers))
	return true
}

func (p *Pool) spawnLocked(ctx context.Context, index int) {
	id := fmt.Sprintf("%s-worker-%d", p.cfg.PodID, index)
	idleTimeout := pollJitter(p.cfg.IdleTimeout, p.cfg.IdleTimeoutJitter)
	w := New(id, p.coord, p.svc, p.llm, p.registry, idleTimeout)
	p.workers = append(p.workers, w)
	w.Start(ctx)
}

// Stop cancels every worker's run loop and awaits termination.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	workers := append([]*Worker{}, p.workers...)
	p.mu.Unlock()

	slog.Info("stopping execution worker pool", "pod_id", p.cfg.PodID, "worker_count", len(workers))
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop(ctx)
		}(w)
	}
	wg.Wait()
	slog.Info("execution worker pool stopped")
}

// Health reports per-worker snapshots for a health endpoint.
func (p *Pool) Health() []Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Health, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Health()
	}
	return out
}
