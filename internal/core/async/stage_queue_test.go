package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casda-stager/internal/casda"
)

type recordingProcessor struct {
	mu    sync.Mutex
	seen  []uuid.UUID
	block bool
	errs  map[uuid.UUID]error
}

func (p *recordingProcessor) ProcessRequest(ctx context.Context, id uuid.UUID) (*casda.StageResult, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, id)
	if err := p.errs[id]; err != nil {
		return nil, err
	}
	return &casda.StageResult{}, nil
}

func (p *recordingProcessor) processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func TestStageQueue_ProcessesEveryJob(t *testing.T) {
	failing := uuid.New()
	proc := &recordingProcessor{errs: map[uuid.UUID]error{failing: errors.New("remote down")}}
	q := NewStageQueue(proc, nil, WithWorkers(3), WithQueueSize(2))

	ids := []uuid.UUID{uuid.New(), failing, uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), Job{RequestID: id}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, len(ids), proc.processed())
	assert.ElementsMatch(t, ids, proc.seen)
}

func TestStageQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewStageQueue(&recordingProcessor{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{RequestID: uuid.New()})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestStageQueue_ShutdownCancelsInFlight(t *testing.T) {
	proc := &recordingProcessor{block: true}
	q := NewStageQueue(proc, nil, WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), Job{RequestID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		q.Shutdown(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not cancel the blocked request")
	}
}

func TestStageQueue_ProcessTimeout(t *testing.T) {
	proc := &recordingProcessor{block: true}
	q := NewStageQueue(proc, nil, WithWorkers(1), WithProcessTimeout(20*time.Millisecond))
	require.NoError(t, q.Enqueue(context.Background(), Job{RequestID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	q.Shutdown(ctx)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStageQueue_EnqueueBlocksWhenFull(t *testing.T) {
	proc := &recordingProcessor{block: true}
	q := NewStageQueue(proc, nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		q.Shutdown(ctx)
	}()

	// one job held by the worker, one buffered
	require.NoError(t, q.Enqueue(context.Background(), Job{RequestID: uuid.New()}))
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{RequestID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{RequestID: uuid.New()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStageQueue_ShutdownReleasesBlockedEnqueue(t *testing.T) {
	proc := &recordingProcessor{block: true}
	q := NewStageQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{RequestID: uuid.New()}))
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{RequestID: uuid.New()}))

	enqueued := make(chan error, 1)
	go func() {
		enqueued <- q.Enqueue(context.Background(), Job{RequestID: uuid.New()})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		q.Shutdown(ctx)
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown waited on a blocked enqueue")
	}
	select {
	case err := <-enqueued:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue was not released")
	}
}
