package pipeline

import "github.com/thebtf/ideahunter/pkg/models"

// Event types broadcast to status subscribers.
const (
	EventRunStarted    = "run_started"
	EventProgress      = "progress"
	EventProblemScored = "problem_scored"
	EventRunFinished   = "run_finished"
)

// Event is a pipeline notification.
type Event struct {
	Stats     *models.RunStats `json:"stats,omitempty"`
	Type      string           `json:"type"`
	RunID     string           `json:"runId,omitempty"`
	Status    models.RunStatus `json:"status,omitempty"`
	Error     string           `json:"error,omitempty"`
	ProblemID int64            `json:"problemId,omitempty"`
	ClusterID int64            `json:"clusterId,omitempty"`
	Score     float64          `json:"score,omitempty"`
	Done      int              `json:"done,omitempty"`
	Total     int              `json:"total,omitempty"`
}

// EventName returns the SSE event name.
func (e Event) EventName() string {
	return e.Type
}
