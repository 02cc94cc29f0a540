// Package jobmanager runs cancellable background analytics tasks, keeping at
// most one task of each kind in flight.
package jobmanager

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// entry is a task with its cancel function. task is guarded by the manager mutex.
type entry struct {
	task   models.Task
	cancel context.CancelFunc
}

// JobManager implements interfaces.TaskManager. A newer submission of the
// same kind cancels the older one and marks it superseded; the older task's
// result, if it still arrives, is discarded.
type JobManager struct {
	logger *common.Logger
	hub    *TaskWSHub
	config common.TasksConfig

	mu     sync.Mutex
	tasks  map[string]*entry
	latest map[string]string // kind -> task id

	now    func() time.Time
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ interfaces.TaskManager = (*JobManager)(nil)

// NewJobManager creates a new job manager.
func NewJobManager(logger *common.Logger, config common.TasksConfig) *JobManager {
	return &JobManager{
		logger: logger,
		hub:    NewTaskWSHub(logger),
		config: config,
		tasks:  make(map[string]*entry),
		latest: make(map[string]string),
		now:    time.Now,
		base:   context.Background(),
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (jm *JobManager) safeGo(name string, fn func()) {
	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				jm.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the WebSocket hub and the sweeper that prunes finished tasks.
// Safe to call multiple times; any running loops are stopped first.
func (jm *JobManager) Start() {
	if jm.cancel != nil {
		jm.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	jm.mu.Lock()
	jm.base = ctx
	hub := jm.hub
	jm.mu.Unlock()
	jm.cancel = cancel

	jm.safeGo("websocket-hub", func() { hub.Run() })
	jm.safeGo("sweeper", func() { jm.sweepLoop(ctx) })

	jm.logger.Info().
		Str("retention", jm.config.GetRetention().String()).
		Msg("Job manager started")
}

// Stop cancels running tasks and loops and waits for them to finish.
func (jm *JobManager) Stop() {
	if jm.cancel != nil {
		jm.cancel()
		jm.cancel = nil
	}
	jm.mu.Lock()
	hub := jm.hub
	jm.hub = NewTaskWSHub(jm.logger)
	jm.base = context.Background()
	jm.mu.Unlock()
	hub.Stop()
	jm.wg.Wait()
	jm.logger.Info().Msg("Job manager stopped")
}

// Hub returns the current WebSocket hub.
func (jm *JobManager) Hub() *TaskWSHub {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.hub
}

// Submit starts fn as the current task of kind, superseding any unfinished
// task of the same kind. The returned task is a snapshot.
func (jm *JobManager) Submit(kind string, fn interfaces.TaskFunc) *models.Task {
	id := uuid.New().String()

	jm.mu.Lock()
	ctx, cancel := context.WithCancel(jm.base)
	e := &entry{
		task: models.Task{
			ID:        id,
			Kind:      kind,
			Status:    models.TaskStatusPending,
			CreatedAt: jm.now(),
		},
		cancel: cancel,
	}
	if prevID, ok := jm.latest[kind]; ok {
		if prev := jm.tasks[prevID]; prev != nil && !prev.task.Done() {
			jm.finishLocked(prev, models.TaskStatusSuperseded, nil, "")
			prev.task.SupersededBy = id
			jm.logger.Info().
				Str("task_id", prevID).
				Str("superseded_by", id).
				Str("kind", kind).
				Msg("Task superseded")
			jm.broadcastLocked(models.TaskEventFinished, prev)
		}
	}
	jm.tasks[id] = e
	jm.latest[kind] = id
	snapshot := e.task
	jm.broadcastLocked(models.TaskEventSubmitted, e)
	jm.mu.Unlock()

	jm.safeGo("task-"+kind, func() { jm.run(ctx, e, fn) })
	return &snapshot
}

func (jm *JobManager) run(ctx context.Context, e *entry, fn interfaces.TaskFunc) {
	jm.mu.Lock()
	if e.task.Done() {
		jm.mu.Unlock()
		return
	}
	e.task.Status = models.TaskStatusRunning
	e.task.StartedAt = jm.now()
	jm.broadcastLocked(models.TaskEventStarted, e)
	jm.mu.Unlock()

	progress := func(f float64) {
		jm.mu.Lock()
		defer jm.mu.Unlock()
		if e.task.Done() || f < e.task.Progress {
			return
		}
		e.task.Progress = min(f, 1)
		jm.broadcastLocked(models.TaskEventProgress, e)
	}

	var (
		result interface{}
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				jm.logger.Error().
					Str("task_id", e.task.ID).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in task")
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		result, err = fn(ctx, progress)
	}()

	jm.mu.Lock()
	defer jm.mu.Unlock()
	if e.task.Done() {
		// superseded or cancelled while running; the result is stale
		return
	}
	switch {
	case err != nil && ctx.Err() != nil:
		jm.finishLocked(e, models.TaskStatusCancelled, nil, "")
	case err != nil:
		jm.finishLocked(e, models.TaskStatusFailed, nil, err.Error())
		jm.logger.Warn().
			Str("task_id", e.task.ID).
			Str("kind", e.task.Kind).
			Int64("duration_ms", e.task.DurationMS).
			Err(err).
			Msg("Task failed")
	default:
		e.task.Progress = 1
		jm.finishLocked(e, models.TaskStatusCompleted, result, "")
		jm.logger.Debug().
			Str("task_id", e.task.ID).
			Str("kind", e.task.Kind).
			Int64("duration_ms", e.task.DurationMS).
			Msg("Task completed")
	}
	jm.broadcastLocked(models.TaskEventFinished, e)
}

// finishLocked moves e to a terminal status and releases its context.
func (jm *JobManager) finishLocked(e *entry, status string, result interface{}, errMsg string) {
	now := jm.now()
	e.task.Status = status
	e.task.Result = result
	e.task.Error = errMsg
	e.task.CompletedAt = now
	if !e.task.StartedAt.IsZero() {
		e.task.DurationMS = now.Sub(e.task.StartedAt).Milliseconds()
	}
	e.cancel()
}

func (jm *JobManager) broadcastLocked(eventType string, e *entry) {
	if jm.hub == nil {
		return
	}
	t := e.task
	if eventType != models.TaskEventFinished {
		t.Result = nil
	}
	jm.hub.Broadcast(models.TaskEvent{Type: eventType, Task: t, Timestamp: jm.now()})
}

// Get returns a snapshot of the task with id.
func (jm *JobManager) Get(id string) (*models.Task, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	e, ok := jm.tasks[id]
	if !ok {
		return nil, false
	}
	t := e.task
	return &t, true
}

// Latest returns a snapshot of the most recently submitted task of kind.
func (jm *JobManager) Latest(kind string) (*models.Task, bool) {
	jm.mu.Lock()
	id, ok := jm.latest[kind]
	jm.mu.Unlock()
	if !ok {
		return nil, false
	}
	return jm.Get(id)
}

// Cancel stops an unfinished task. It reports whether anything was cancelled.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	e, ok := jm.tasks[id]
	if !ok || e.task.Done() {
		return false
	}
	jm.finishLocked(e, models.TaskStatusCancelled, nil, "")
	jm.broadcastLocked(models.TaskEventFinished, e)
	jm.logger.Info().Str("task_id", id).Str("kind", e.task.Kind).Msg("Task cancelled")
	return true
}

// Prune drops finished tasks that completed before cutoff, keeping the latest
// task of each kind. It returns the number removed.
func (jm *JobManager) Prune(cutoff time.Time) int {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	keep := make(map[string]bool, len(jm.latest))
	for _, id := range jm.latest {
		keep[id] = true
	}
	removed := 0
	for id, e := range jm.tasks {
		if keep[id] || !e.task.Done() || !e.task.CompletedAt.Before(cutoff) {
			continue
		}
		delete(jm.tasks, id)
		removed++
	}
	return removed
}

func (jm *JobManager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(jm.config.GetSweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := jm.Prune(jm.now().Add(-jm.config.GetRetention())); n > 0 {
				jm.logger.Debug().Int("count", n).Msg("Pruned finished tasks")
			}
		}
	}
}

// ServeWS streams task events over a WebSocket, starting with the latest
// task of each kind.
func (jm *JobManager) ServeWS(w http.ResponseWriter, r *http.Request) {
	jm.mu.Lock()
	hub := jm.hub
	initial := make([]models.TaskEvent, 0, len(jm.latest))
	for _, id := range jm.latest {
		if e := jm.tasks[id]; e != nil {
			t := e.task
			t.Result = nil
			initial = append(initial, models.TaskEvent{Type: models.TaskEventProgress, Task: t, Timestamp: jm.now()})
		}
	}
	jm.mu.Unlock()
	hub.ServeWS(w, r, initial)
}
