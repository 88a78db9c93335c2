package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutePreservesInputOrder(t *testing.T) {
	pool := NewPool(4, func(ctx context.Context, n int) (int, error) {
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n * n, nil
	})
	inputs := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	results := pool.Execute(context.Background(), inputs)
	if len(results) != len(inputs) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Input != inputs[i] || r.Result != inputs[i]*inputs[i] || r.Err != nil {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	var running, peak int32
	pool := NewPool(2, func(ctx context.Context, n int) (int, error) {
		cur := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return n, nil
	})
	pool.Execute(context.Background(), make([]int, 10))
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestExecuteReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	pool := NewPool(2, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	results := pool.Execute(context.Background(), []int{1, 2, 3})
	if !errors.Is(results[1].Err, boom) || results[0].Err != nil || results[2].Err != nil {
		t.Errorf("results = %+v", results)
	}
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	pool := NewPool(1, func(ctx context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return n, ctx.Err()
	})
	results := pool.Execute(ctx, []int{1, 2, 3, 4})
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("result %d err = %v", i, r.Err)
		}
	}
}

func TestExecuteEmpty(t *testing.T) {
	pool := NewPool(0, func(ctx context.Context, n int) (int, error) { return n, nil })
	if got := pool.Execute(context.Background(), nil); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}
