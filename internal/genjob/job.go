// Package genjob implements the adapter-generation job queue: a
// single-writer worker claims queued rows, invokes an external generator,
// and persists the result as a sandbox adapter via internal/adapter.
package genjob

import "time"

// Job statuses form a monotone sequence: queued -> running -> {complete, failed}.
const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Job is the persisted shape of a generation_jobs row.
type Job struct {
	ID          string
	Platform    string
	OwnerKeyID  *string
	Status      string
	Logs        []string
	Result      *string
	Error       *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
