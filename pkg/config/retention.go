package config

import "time"

// RetentionConfig controls how long completed job data is kept before
// the cleanup service purges it.
type RetentionConfig struct {
	// JobRetentionDays is how many days after creation a job in a
	// terminal state becomes eligible for purging. The purge removes the
	// job definition, survey, job-level counters and sets; answers,
	// interviews, tasks and offloaded blobs are not deleted.
	JobRetentionDays int `yaml:"job_retention_days"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		JobRetentionDays: 30,
		CleanupInterval:  12 * time.Hour,
	}
}
