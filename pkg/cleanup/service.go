// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/config"
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

// Service periodically enforces retention policy: jobs created more
// than JobRetentionDays ago that are now in a terminal state have their
// definition and counters purged. Running jobs are never touched regardless of
// age.
//
// All operations are idempotent and safe to run from multiple
// processes: deleting an already-deleted key is a no-op.
type Service struct {
	config  *config.RetentionConfig
	stores  *jobservice.Stores
	storage storage.Storage

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, stores *jobservice.Stores, st storage.Storage) *Service {
	return &Service{config: cfg, stores: stores, storage: st}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"job_retention_days", s.config.JobRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	count, err := s.purgeExpiredJobs(ctx)
	if err != nil {
		slog.Error("retention: purge expired jobs failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: purged expired jobs", "count", count)
	}
}

// purgeExpiredJobs scans every job meta record and removes the job
// definition and its counters once it has sat in a terminal state
// longer than JobRetentionDays. It reports how many jobs it purged.
func (s *Service) purgeExpiredJobs(ctx context.Context) (int, error) {
	keys, err := s.storage.Persistent().Scan(ctx, "job:")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(s.config.JobRetentionDays) * 24 * time.Hour)
	purged := 0
	for _, key := range keys {
		jobID, ok := parseJobMetaKey(key)
		if !ok {
			continue
		}

		job, ok, err := s.stores.GetJob(ctx, jobID)
		if err != nil || !ok {
			continue
		}
		if !job.CreatedAt.Before(cutoff) {
			continue
		}

		counters, err := s.stores.GetJobCounters(ctx, jobID)
		if err != nil {
			continue
		}
		if !isTerminal(counters.State) {
			continue
		}

		if err := s.purgeJob(ctx, job); err != nil {
			slog.Error("retention: failed purging job", "job_id", jobID, "error", err)
			continue
		}
		purged++
	}
	return purged, nil
}

func (s *Service) purgeJob(ctx context.Context, job model.Job) error {
	p := s.storage.Persistent()
	v := s.storage.Volatile()

	if err := p.Delete(ctx, storage.Keys.JobMeta(job.ID)); err != nil {
		return err
	}
	if err := p.Delete(ctx, storage.Keys.JobSurvey(job.ID)); err != nil {
		return err
	}
	if err := v.Delete(ctx, storage.Keys.JobState(job.ID)); err != nil {
		return err
	}
	if err := v.Delete(ctx, storage.Keys.JobCompletedInterviews(job.ID)); err != nil {
		return err
	}
	if err := v.Delete(ctx, storage.Keys.JobFailedInterviews(job.ID)); err != nil {
		return err
	}
	if err := s.drainSet(ctx, storage.Keys.JobCountedInterviews(job.ID)); err != nil {
		return err
	}
	return s.drainSet(ctx, storage.Keys.JobReadyTasks(job.ID))
}

// drainSet empties a Sets-namespace key; the Sets surface has no
// delete, so an empty set is the closest equivalent.
func (s *Service) drainSet(ctx context.Context, key string) error {
	for {
		popped, err := s.storage.Sets().PopMultiple(ctx, key, 1000)
		if err != nil {
			return err
		}
		if len(popped) == 0 {
			return nil
		}
	}
}

func isTerminal(state model.JobState) bool {
	switch state {
	case model.JobCompleted, model.JobCompletedWithFailures, model.JobCancelled:
		return true
	default:
		return false
	}
}

func parseJobMetaKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "job:")
	if !ok {
		return "", false
	}
	jobID, ok := strings.CutSuffix(rest, ":meta")
	return jobID, ok
}
