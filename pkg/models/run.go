// Package models contains domain models for ideahunter.
package models

import "time"

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// RunStats counts what happened to the items of one pipeline run.
type RunStats struct {
	Fetched       int `json:"fetched"`
	New           int `json:"new"`
	Processed     int `json:"processed"`
	NoProblem     int `json:"no_problem"`
	ExtractFailed int `json:"extract_failed"`
	Errors        int `json:"errors"`
}

// PipelineRun is the persisted record of one pipeline run.
type PipelineRun struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	RunStats
}

// Elapsed returns the run duration, or zero while the run is in progress.
func (r *PipelineRun) Elapsed() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
