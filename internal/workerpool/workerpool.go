// Package workerpool runs independent jobs on a fixed number of goroutines.
package workerpool

import (
	"context"
	"runtime"
	"sync"
)

// Pool distributes jobs across workers and collects their results.
type Pool[Job any, Result any] struct {
	numWorkers int
	jobs       chan indexed[Job]
	results    chan indexed[Result]
	wg         sync.WaitGroup
	submitted  int
}

type indexed[T any] struct {
	index int
	value T
}

// New creates a pool. A non-positive numWorkers means GOMAXPROCS; the pool
// never starts more workers than there are jobs.
func New[Job any, Result any](numWorkers, numJobs int) *Pool[Job, Result] {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numJobs > 0 {
		numWorkers = min(numWorkers, numJobs)
	}
	return &Pool[Job, Result]{
		numWorkers: numWorkers,
		jobs:       make(chan indexed[Job], numJobs),
		results:    make(chan indexed[Result], numJobs),
	}
}

// Workers returns the number of workers the pool starts.
func (p *Pool[Job, Result]) Workers() int { return p.numWorkers }

// Start launches the workers. Jobs submitted after ctx is cancelled are
// skipped and produce the zero Result.
func (p *Pool[Job, Result]) Start(ctx context.Context, workerFn func(context.Context, Job) Result) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				var r Result
				if ctx.Err() == nil {
					r = workerFn(ctx, job.value)
				}
				p.results <- indexed[Result]{index: job.index, value: r}
			}
		}()
	}
}

// Submit queues a job.
func (p *Pool[Job, Result]) Submit(job Job) {
	p.jobs <- indexed[Job]{index: p.submitted, value: job}
	p.submitted++
}

// Close stops accepting jobs. The results channel closes once every worker
// has finished.
func (p *Pool[Job, Result]) Close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Collect closes the pool and returns the results in submission order.
func (p *Pool[Job, Result]) Collect() []Result {
	n := p.submitted
	p.Close()
	out := make([]Result, n)
	for r := range p.results {
		out[r.index] = r.value
	}
	return out
}

// Map runs fn over jobs with numWorkers goroutines and returns the results in
// input order.
func Map[Job any, Result any](ctx context.Context, numWorkers int, jobs []Job, fn func(context.Context, Job) Result) []Result {
	p := New[Job, Result](numWorkers, len(jobs))
	p.Start(ctx, fn)
	for _, j := range jobs {
		p.Submit(j)
	}
	return p.Collect()
}
