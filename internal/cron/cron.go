// Package cron runs periodic maintenance: idle session pruning, usage
// reports and provider health publication.
package cron

import "context"

// Job is a periodic task.
type Job interface {
	// Name identifies the job in logs. Names are unique per scheduler.
	Name() string

	// Schedule is a 5-field cron expression or a descriptor such as
	// "@every 5m".
	Schedule() string

	// Run executes one tick. It should return promptly once ctx is done.
	Run(ctx context.Context) error
}
