package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Completes(t *testing.T) {
	r := NewRunner(2, nil)

	var updates []Progress
	var mu sync.Mutex
	h := Run(r, context.Background(), "count", func(ctx context.Context, rep *Reporter) (int, error) {
		rep.SetTotal(3)
		for i := 0; i < 3; i++ {
			rep.Start("item")
			rep.Advance(1)
		}
		return 3, nil
	}, WithProgress(func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	}))

	res := h.Await(context.Background())
	require.NoError(t, res.Err)
	assert.False(t, res.Incomplete)
	assert.Equal(t, 3, res.Value)
	assert.Equal(t, "count", h.Name())

	p := h.Progress()
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, int64(3), p.Done)
	assert.Equal(t, int64(3), p.Total)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	assert.Equal(t, StatusRunning, updates[0].Status)
	assert.Equal(t, StatusCompleted, updates[len(updates)-1].Status)
}

func TestRun_CancelReturnsPartialValue(t *testing.T) {
	r := NewRunner(1, nil)
	started := make(chan struct{})

	h := Run(r, context.Background(), "endless", func(ctx context.Context, rep *Reporter) ([]int, error) {
		var done []int
		for i := 0; ; i++ {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			done = append(done, i)
			if i == 2 {
				close(started)
			}
			time.Sleep(time.Millisecond)
		}
	})

	<-started
	h.Cancel()

	res := h.Await(context.Background())
	assert.NoError(t, res.Err)
	assert.True(t, res.Incomplete)
	assert.GreaterOrEqual(t, len(res.Value), 3)
	assert.Equal(t, StatusCancelled, h.Progress().Status)
}

func TestRun_ParentDeadlineIsIncomplete(t *testing.T) {
	r := NewRunner(1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	h := Run(r, ctx, "slow", func(ctx context.Context, rep *Reporter) (int, error) {
		<-ctx.Done()
		return 1, ctx.Err()
	})

	res := h.Await(context.Background())
	assert.NoError(t, res.Err)
	assert.True(t, res.Incomplete)
	assert.Equal(t, 1, res.Value)
	assert.Equal(t, StatusCancelled, h.Progress().Status)
}

func TestRun_Failure(t *testing.T) {
	r := NewRunner(1, nil)
	boom := errors.New("boom")

	h := Run(r, context.Background(), "fail", func(ctx context.Context, rep *Reporter) (string, error) {
		return "", boom
	})

	res := h.Await(context.Background())
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.Incomplete)
	assert.Equal(t, StatusFailed, h.Progress().Status)
}

func TestRun_PanicBecomesError(t *testing.T) {
	r := NewRunner(1, nil)
	h := Run(r, context.Background(), "panic", func(ctx context.Context, rep *Reporter) (int, error) {
		panic("bad")
	})

	res := h.Await(context.Background())
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "bad")
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	r := NewRunner(1, nil)
	release := make(chan struct{})

	first := Run(r, context.Background(), "first", func(ctx context.Context, rep *Reporter) (int, error) {
		<-release
		return 1, nil
	})
	second := Run(r, context.Background(), "second", func(ctx context.Context, rep *Reporter) (int, error) {
		return 2, nil
	})

	// the second task cannot start while the first holds the only slot
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusPending, second.Progress().Status)

	second.Cancel()
	res := second.Await(context.Background())
	assert.True(t, res.Incomplete)
	assert.Equal(t, StatusCancelled, second.Progress().Status)

	close(release)
	assert.Equal(t, 1, first.Await(context.Background()).Value)
	r.Wait()
}

func TestHandle_AwaitContext(t *testing.T) {
	r := NewRunner(1, nil)
	release := make(chan struct{})
	h := Run(r, context.Background(), "slow", func(ctx context.Context, rep *Reporter) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := h.Await(ctx)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	close(release)
	<-h.Done()
	assert.Equal(t, 1, h.Await(context.Background()).Value)
}
