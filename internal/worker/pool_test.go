package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

func job(key string, n int) model.Job {
	return model.Job{ID: fmt.Sprintf("%s-%d", key, n), Key: key, Direction: model.DirectionToGroup}
}

func TestPool_PreservesPerKeyOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]string{}

	pool := NewPool(4, func(ctx context.Context, j model.Job) {
		time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)
		mu.Lock()
		seen[j.Key] = append(seen[j.Key], j.ID)
		mu.Unlock()
	}, nil)

	keys := []string{"chat:1", "chat:2", "chat:3"}
	for i := 0; i < 40; i++ {
		for _, k := range keys {
			require.NoError(t, pool.Submit(job(k, i)))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	for _, k := range keys {
		require.Len(t, seen[k], 40)
		for i, id := range seen[k] {
			assert.Equal(t, fmt.Sprintf("%s-%d", k, i), id)
		}
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32

	pool := NewPool(2, func(ctx context.Context, j model.Job) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}, nil)

	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(job(fmt.Sprintf("chat:%d", i), 0)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestPool_DistinctKeysRunInParallel(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})

	pool := NewPool(2, func(ctx context.Context, j model.Job) {
		started <- j.Key
		<-release
	}, nil)

	require.NoError(t, pool.Submit(job("chat:1", 0)))
	require.NoError(t, pool.Submit(job("chat:2", 0)))

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs for distinct keys did not run concurrently")
		}
	}
	close(release)

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_SingleWorkerTwoKeys(t *testing.T) {
	var delivered int32
	pool := NewPool(1, func(ctx context.Context, j model.Job) {
		atomic.AddInt32(&delivered, 1)
	}, nil)

	var wg sync.WaitGroup
	for _, k := range []string{"chat:1", "chat:2"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			assert.NoError(t, pool.Submit(job(k, 0)))
		}(k)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&delivered))
}

func TestPool_RejectsAfterShutdown(t *testing.T) {
	pool := NewPool(1, func(ctx context.Context, j model.Job) {}, nil)
	require.NoError(t, pool.Shutdown(context.Background()))

	err := pool.Submit(job("chat:1", 0))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeShuttingDown))
}

func TestPool_ShutdownGraceExceeded(t *testing.T) {
	var abandoned []string
	var mu sync.Mutex
	running := make(chan struct{})

	pool := NewPool(1, func(ctx context.Context, j model.Job) {
		close(running)
		<-ctx.Done()
	}, func(j model.Job, reason error) {
		mu.Lock()
		abandoned = append(abandoned, j.ID)
		mu.Unlock()
		assert.True(t, apperrors.Is(reason, apperrors.ErrCodeShuttingDown))
	})

	require.NoError(t, pool.Submit(job("chat:1", 0)))
	require.NoError(t, pool.Submit(job("chat:1", 1)))
	require.NoError(t, pool.Submit(job("chat:1", 2)))
	<-running

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := pool.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"chat:1-1", "chat:1-2"}, abandoned)
	assert.Zero(t, pool.Pending())
}

func TestPool_RecoversFromPanic(t *testing.T) {
	var ran int32
	var mu sync.Mutex
	var abandoned []string
	var reasons []error

	pool := NewPool(1, func(ctx context.Context, j model.Job) {
		if j.ID == "chat:1-0" {
			panic("boom")
		}
		atomic.AddInt32(&ran, 1)
	}, func(j model.Job, reason error) {
		mu.Lock()
		defer mu.Unlock()
		abandoned = append(abandoned, j.ID)
		reasons = append(reasons, reason)
	})

	require.NoError(t, pool.Submit(job("chat:1", 0)))
	require.NoError(t, pool.Submit(job("chat:1", 1)))
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"chat:1-0"}, abandoned)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0].Error(), "boom")
}
