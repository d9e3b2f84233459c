package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestMapKeepsOrder(t *testing.T) {
	jobs := make([]int, 50)
	for i := range jobs {
		jobs[i] = i
	}
	got := Map(context.Background(), 4, jobs, func(_ context.Context, n int) int { return n * n })
	if len(got) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(got), len(jobs))
	}
	for i, v := range got {
		if v != i*i {
			t.Errorf("result[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestPoolSizing(t *testing.T) {
	tests := []struct {
		workers, jobs, want int
	}{
		{4, 2, 2},
		{2, 10, 2},
		{3, 0, 3},
	}
	for _, tt := range tests {
		p := New[int, int](tt.workers, tt.jobs)
		if p.Workers() != tt.want {
			t.Errorf("New(%d, %d).Workers() = %d, want %d", tt.workers, tt.jobs, p.Workers(), tt.want)
		}
	}
	if New[int, int](0, 100).Workers() < 1 {
		t.Error("default pool has no workers")
	}
}

func TestCancelledContextSkipsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	got := Map(ctx, 2, []string{"a", "b", "c"}, func(_ context.Context, s string) string {
		calls.Add(1)
		return s
	})
	if calls.Load() != 0 {
		t.Errorf("worker ran %d times after cancel", calls.Load())
	}
	for i, s := range got {
		if s != "" {
			t.Errorf("result[%d] = %q, want zero value", i, s)
		}
	}
}

func TestEmptyJobs(t *testing.T) {
	got := Map(context.Background(), 3, nil, func(_ context.Context, n int) int { return n })
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
