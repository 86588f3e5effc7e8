package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type indexedJob struct {
	index int
	job   Job
}

type indexedResult struct {
	index  int
	result Result
}

// Pool runs jobs on a fixed number of workers and returns their results in
// submission order. Submit must be called from a single goroutine.
type Pool struct {
	workers    int
	jobQueue   chan indexedJob
	results    chan indexedResult
	collector  *ResultCollector
	collected  chan struct{}
	submitted  int
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	waitOnce   sync.Once
}

// NewPool creates a pool whose jobs run under ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexedJob, workers*2),
		results:    make(chan indexedResult, workers*2),
		collector:  NewResultCollector(),
		collected:  make(chan struct{}),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the workers and the result collector
func (p *Pool) Start() {
	go p.collect()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// collect drains results as they arrive so workers never block on a full
// results channel.
func (p *Pool) collect() {
	defer close(p.collected)
	for r := range p.results {
		p.collector.Set(r.index, r.result)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for ij := range p.jobQueue {
		// Drain without executing once cancelled.
		if p.ctx.Err() != nil {
			continue
		}
		p.results <- indexedResult{index: ij.index, result: ij.job.Execute(p.ctx)}
	}
}

// Submit queues a job. It returns false without queueing when the pool has
// been cancelled.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	ij := indexedJob{index: p.submitted, job: job}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- ij:
		p.submitted++
		return true
	}
}

// Wait waits for all submitted jobs and returns one slot per job in
// submission order. A slot is nil when the job never ran because the pool
// was cancelled first.
func (p *Pool) Wait() []Result {
	p.waitOnce.Do(func() {
		close(p.jobQueue)
		p.wg.Wait()
		p.closeResults()
		<-p.collected
	})
	defer p.cancelFunc()
	return p.collector.Ordered(p.submitted)
}

// Shutdown cancels pending jobs and waits for running ones to return
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.Wait()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

// ResultCollector gathers results from concurrent workers
type ResultCollector struct {
	results map[int]Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make(map[int]Result),
	}
}

// Set records the result for a submission index (thread-safe)
func (c *ResultCollector) Set(index int, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[index] = result
}

// Len returns the number of recorded results
func (c *ResultCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Ordered returns n slots, filling each with the result recorded for that
// index or nil.
func (c *ResultCollector) Ordered(n int) []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, n)
	for i := range out {
		out[i] = c.results[i]
	}
	return out
}
