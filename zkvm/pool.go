package zkvm

import (
	"context"
	"runtime"

	"zk-attestation/shared"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds the number of concurrent proving jobs
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int
}

// NewWorkerPool creates a pool of size workers; size <= 0 means NumCPU
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &WorkerPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

func (p *WorkerPool) Size() int {
	return p.size
}

// Run waits for a free worker and executes fn on it. ctx only bounds the
// wait for a slot; once fn starts it runs to completion.
func (p *WorkerPool) Run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return shared.NewInfraError("prove", "no prover worker became available", err)
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()
	return <-done
}
