package config

import "time"

// QueueConfig contains execution worker pool and coordinator tuning.
// These values control how the worker pool polls for work, how many
// tasks run concurrently per pod, and how aggressively dead workers
// are detected.
type QueueConfig struct {
	// WorkerCount is the number of execution worker goroutines per
	// replica/pod. Each worker independently long-polls the coordinator
	// for work.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentTasks is loaded from configuration but no component
	// reads it; no global cap on concurrently running LLM tasks is
	// applied.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// PollInterval is how long a worker's long-poll waits for an
	// assignment before returning to the top of its loop.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is loaded from configuration but no component
	// reads it; workers long-poll for exactly PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// TaskTimeout is loaded from configuration but no component reads
	// it; workers call the LLM capability without a per-task deadline.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// tasks to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often the dead-worker recovery
	// loop scans the worker registry.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a worker can go without a heartbeat
	// before it is considered dead and its task requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// RenderBatchSize bounds how many ready tasks a single render pass
	// pops from a job's ready set at once.
	RenderBatchSize int `yaml:"render_batch_size"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentTasks:      50,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		TaskTimeout:             15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
		RenderBatchSize:         100,
	}
}
