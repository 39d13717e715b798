package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/pipeline"
)

type runnerStub struct {
	mu    sync.Mutex
	runs  []pipeline.Submission
	delay time.Duration
}

func (r *runnerStub) Run(_ context.Context, sub pipeline.Submission, progress pipeline.ProgressFunc) *entity.PipelineImportResult {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if progress != nil {
		progress(entity.PipelineStatus{Stage: constants.StageComplete, Progress: 100, Message: "done"})
	}
	r.mu.Lock()
	r.runs = append(r.runs, sub)
	r.mu.Unlock()
	return &entity.PipelineImportResult{Success: true}
}

func (r *runnerStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestQueue_RunsJobToCompletion(t *testing.T) {
	runner := &runnerStub{}
	q := NewQueue(runner, nil, WithWorkers(1))
	defer q.Shutdown(context.Background())

	id, err := q.Enqueue(context.Background(), pipeline.Submission{Filename: "a.pdf"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := q.Status(id)
		return st != nil && st.State == JobDone
	}, 2*time.Second, 10*time.Millisecond)

	st := q.Status(id)
	require.NotNil(t, st.Result)
	assert.True(t, st.Result.Success)
	require.NotNil(t, st.Progress)
	assert.Equal(t, 100, st.Progress.Progress)
	assert.Equal(t, 1, runner.count())
}

func TestQueue_UnknownJobID(t *testing.T) {
	q := NewQueue(&runnerStub{}, nil)
	defer q.Shutdown(context.Background())

	assert.Nil(t, q.Status(uuid.New()))
}

func TestQueue_ShutdownDrainsInFlightJobs(t *testing.T) {
	runner := &runnerStub{delay: 50 * time.Millisecond}
	q := NewQueue(runner, nil, WithWorkers(2))

	for i := 0; i < 4; i++ {
		_, err := q.Enqueue(context.Background(), pipeline.Submission{Filename: "b.pdf"})
		require.NoError(t, err)
	}
	q.Shutdown(context.Background())

	assert.Equal(t, 4, runner.count())
}

func TestQueue_ConcurrentEnqueueDuringShutdown(t *testing.T) {
	runner := &runnerStub{delay: 5 * time.Millisecond}
	q := NewQueue(runner, nil, WithWorkers(1), WithQueueSize(1))

	const attempts = 16
	var (
		wg       sync.WaitGroup
		accepted sync.WaitGroup
		mu       sync.Mutex
		enqueued int
		rejected int
	)
	accepted.Add(1)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(first bool) {
			defer wg.Done()
			_, err := q.Enqueue(context.Background(), pipeline.Submission{Filename: "c.pdf"})
			if first {
				accepted.Done()
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				require.ErrorIs(t, err, ErrQueueClosed)
				rejected++
				return
			}
			enqueued++
		}(i == 0)
	}

	// Close while enqueuers are still racing in. A send on a closed channel
	// would panic a goroutine and fail the test.
	accepted.Wait()
	q.Shutdown(context.Background())
	wg.Wait()

	assert.Equal(t, attempts, enqueued+rejected)
	assert.Equal(t, enqueued, runner.count())
}

func TestQueue_EnqueueAfterShutdownFails(t *testing.T) {
	q := NewQueue(&runnerStub{}, nil)
	q.Shutdown(context.Background())

	_, err := q.Enqueue(context.Background(), pipeline.Submission{})
	assert.ErrorIs(t, err, ErrQueueClosed)
}
