// ============================================================================
// Shopfloor Planner Worker - Solve Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Work unit that runs solves, each Worker runs in an independent goroutine
//
// How it works:
//   Each Worker is an independent goroutine that continuously executes the following loop:
//   1. Receive task from taskCh (blocking wait)
//   2. Run the handler on the task's request
//   3. Send result to resultCh, unless the pool is stopping
//   4. Repeat above process until taskCh is closed
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for task := range taskCh     │   │
//   │  │   ├─ Context with deadline   │   │
//   │  │   ├─ handler(ctx, request)   │   │
//   │  │   └─ send result to resultCh │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Timeout Control:
//   A solve is bounded by its own search budget and cannot be aborted. The
//   task timeout only marks an overrun: the result keeps the schedule and
//   carries context.DeadlineExceeded in Error.
//
// Error Handling:
//   - Handler panic: recovered, reported as Error, the Worker keeps running
//   - Overrun: Error = context.DeadlineExceeded
//   - Infeasible models are normal results (Solve.Status = failed)
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"time"
)

// Worker represents a work execution unit
// Each Worker runs in an independent goroutine, receives tasks from task channel and executes them
type Worker struct {
	id       int             // Worker unique identifier, used for logging and debugging
	taskCh   <-chan Task     // Task channel (read-only), receives tasks to execute
	resultCh chan<- Result   // Result channel (write-only), sends task execution results
	stopCh   <-chan struct{} // Closed when the pool stops
	handler  Handler
}

// newWorker creates a new Worker instance
func newWorker(id int, taskCh <-chan Task, resultCh chan<- Result, stopCh <-chan struct{}, handler Handler) *Worker {
	return &Worker{
		id:       id,
		taskCh:   taskCh,
		resultCh: resultCh,
		stopCh:   stopCh,
		handler:  handler,
	}
}

// Run is the main loop of Worker, receives tasks from task channel and executes them
// After each task execution, sends the result to result channel
func (w *Worker) Run() {
	for task := range w.taskCh {
		result := w.execute(task)

		select {
		case w.resultCh <- result:
		case <-w.stopCh:
			// Pool is stopping, nobody will read the result
			log().Debug("worker dropped result on shutdown", "worker", w.id, "task", task.ID)
		}
	}
}

// execute runs one solve, converting a handler panic into an error
func (w *Worker) execute(task Task) (result Result) {
	start := time.Now()
	result = Result{ID: task.ID, Seq: task.Seq}

	ctx := context.Background()
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			log().Error("worker recovered from panic", "worker", w.id, "task", task.ID, "panic", r)
			result.Error = fmt.Errorf("solve %s panicked: %v", task.ID, r)
		}
	}()

	result.Solve = w.handler(ctx, task.Request)
	if err := ctx.Err(); err != nil {
		result.Error = err
	}
	return result
}
