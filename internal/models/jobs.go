package models

import "time"

// Task is one background computation run by the task manager.
type Task struct {
	ID           string      `json:"id"`
	Kind         string      `json:"kind"`
	Status       string      `json:"status"`
	Progress     float64     `json:"progress"` // 0..1
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  time.Time   `json:"completed_at"`
	DurationMS   int64       `json:"duration_ms"`
	Error        string      `json:"error,omitempty"`
	SupersededBy string      `json:"superseded_by,omitempty"`
	Result       interface{} `json:"result,omitempty"`
}

// Done reports whether the task reached a terminal status.
func (t *Task) Done() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusSuperseded:
		return true
	}
	return false
}

// Task kind constants. At most one task of each kind is in flight.
const (
	TaskKindSimulation   = "simulation"
	TaskKindOptimization = "optimization"
)

// Task status constants
const (
	TaskStatusPending    = "pending"
	TaskStatusRunning    = "running"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
	TaskStatusCancelled  = "cancelled"
	TaskStatusSuperseded = "superseded"
)

// Task event types
const (
	TaskEventSubmitted = "task_submitted"
	TaskEventStarted   = "task_started"
	TaskEventProgress  = "task_progress"
	TaskEventFinished  = "task_finished"
)

// TaskEvent is broadcast via WebSocket when task state changes.
type TaskEvent struct {
	Type      string    `json:"type"`
	Task      Task      `json:"task"`
	Timestamp time.Time `json:"timestamp"`
}
