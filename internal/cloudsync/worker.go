package cloudsync

import (
	"context"
	"log"
	"time"

	"nodue/internal/metrics"
	"nodue/internal/queue"
)

// Replicator applies a job to the remote side.
type Replicator interface {
	Apply(ctx context.Context, job Job) error
}

// Worker drains sync jobs from a queue. Failed jobs are logged and counted,
// never retried: the next change of the same collection carries the full set again.
type Worker struct {
	q       queue.Queue
	r       Replicator
	timeout time.Duration
}

// NewWorker builds a worker applying jobs from q to r.
func NewWorker(q queue.Queue, r Replicator) *Worker {
	return &Worker{q: q, r: r, timeout: 15 * time.Second}
}

// Run blocks until ctx is done or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		w.handle(ctx, msg)
	}
	return ctx.Err()
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != JobType {
		log.Printf("skipping message %s of type %q", msg.ID, msg.Type)
		return
	}
	var job Job
	if err := msg.Decode(&job); err != nil {
		log.Printf("decode sync job %s failed: %v", msg.ID, err)
		metrics.SyncJobs.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.r.Apply(jobCtx, job); err != nil {
		log.Printf("sync %s for user %s failed: %v", job.Collection, job.UserID, err)
		metrics.SyncJobs.WithLabelValues(string(job.Collection), "failed").Inc()
		return
	}
	metrics.SyncJobs.WithLabelValues(string(job.Collection), "ok").Inc()
}
