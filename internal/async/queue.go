// Package async runs pipeline submissions on a bounded worker pool. A small
// worker count also serializes recognition when the OCR engine host cannot
// take parallel load.
package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/pipeline"
)

// Job is one queued submission.
type Job struct {
	ID          uuid.UUID
	Submission  pipeline.Submission
	SubmittedAt time.Time
}

type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
)

// JobStatus is the queue-side view of a job; once done, Result carries the
// terminal pipeline outcome.
type JobStatus struct {
	State       JobState                     `json:"state"`
	SubmittedAt time.Time                    `json:"submitted_at"`
	Progress    *entity.PipelineStatus       `json:"progress,omitempty"`
	Result      *entity.PipelineImportResult `json:"result,omitempty"`
}

// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shutting down")

// Runner is the piece of the pipeline the queue drives.
type Runner interface {
	Run(ctx context.Context, sub pipeline.Submission, progress pipeline.ProgressFunc) *entity.PipelineImportResult
}

type Queue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// mu guards closed and is held through every send on ch, so Shutdown
	// can never close the channel under a sender.
	mu     sync.Mutex
	closed bool

	// jobsMu guards the status map; workers update it while mu may be held
	// by a blocked sender.
	jobsMu sync.Mutex
	jobs   map[uuid.UUID]*JobStatus
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithRunTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(runner Runner, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		runner:  runner,
		logger:  logger,
		workers: 2,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 64),
		jobs:    map[uuid.UUID]*JobStatus{},
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("async.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.setState(job.ID, JobRunning)
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res := q.runner.Run(ctx, job.Submission, func(s entity.PipelineStatus) {
						q.setProgress(job.ID, s)
					})
					cancel()
					q.setResult(job.ID, res)

					if res.Success {
						q.logger.Info("async.job.done",
							"worker_id", workerID, "job_id", job.ID,
							"filename", job.Submission.Filename)
					} else {
						q.logger.Error("async.job.failed",
							"worker_id", workerID, "job_id", job.ID,
							"filename", job.Submission.Filename,
							"code", res.Code, "error", res.Error)
					}
				}

				q.logger.Info("async.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue registers the submission and hands it to a worker. Returns the job
// ID for later Status polling; a full channel blocks the caller.
func (q *Queue) Enqueue(_ context.Context, sub pipeline.Submission) (uuid.UUID, error) {
	job := Job{ID: uuid.New(), Submission: sub, SubmittedAt: time.Now()}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return uuid.Nil, ErrQueueClosed
	}

	q.jobsMu.Lock()
	q.jobs[job.ID] = &JobStatus{State: JobQueued, SubmittedAt: job.SubmittedAt}
	q.jobsMu.Unlock()

	select {
	case q.ch <- job:
		q.logger.Info("async.job.queued", "job_id", job.ID, "filename", sub.Filename)
	default:
		q.logger.Warn("async.queue.full", "job_id", job.ID, "filename", sub.Filename)
		q.ch <- job
	}
	return job.ID, nil
}

// Status returns the current view of a job, or nil for an unknown ID.
func (q *Queue) Status(id uuid.UUID) *JobStatus {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	st, ok := q.jobs[id]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

func (q *Queue) setState(id uuid.UUID, state JobState) {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	if st, ok := q.jobs[id]; ok {
		st.State = state
	}
}

func (q *Queue) setProgress(id uuid.UUID, s entity.PipelineStatus) {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	if st, ok := q.jobs[id]; ok {
		cp := s
		st.Progress = &cp
	}
}

func (q *Queue) setResult(id uuid.UUID, res *entity.PipelineImportResult) {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	if st, ok := q.jobs[id]; ok {
		st.State = JobDone
		st.Result = res
	}
}

// Shutdown stops intake and waits for in-flight jobs until ctx expires.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("async.shutdown.interrupted")
	case <-done:
		q.logger.Info("async.shutdown.drained")
	}
}
