package worker

import (
	"context"
	"log"
	"time"
)

// refineTimeout bounds one background refinement, model call included.
const refineTimeout = 2 * time.Minute

type worker struct {
	pool       *jobChannelPool
	runner     Runner
	jobChannel chan Job
}

func newWorker(pool *jobChannelPool, runner Runner) *worker {
	return &worker{
		pool:       pool,
		runner:     runner,
		jobChannel: make(chan Job),
	}
}

func (w *worker) start() {
	go func() {
		w.pool.release(w.jobChannel)
		for job := range w.jobChannel {
			switch job.Type {
			case Refine:
				w.handleRefine(job.Refine)
				w.pool.release(w.jobChannel)
			case Stop:
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

// handleRefine runs one refinement. Failures are logged and dropped so a bad
// exchange never takes the worker down with it.
func (w *worker) handleRefine(task RefineTask) {
	ctx, cancel := context.WithTimeout(context.Background(), refineTimeout)
	defer cancel()
	if err := w.runner.Refine(ctx, task.UserID, task.UserText, task.ReplyText); err != nil {
		log.Printf("worker: refinement for user %d failed: %v", task.UserID, err)
	}
}
