package syncutil

import "sync"

// WorkerGroup launches a fixed number of long-running worker goroutines and
// lets the caller wait for all of them to exit. It is the scaffolding the
// flow base (spec.md §4.5) uses for its domain and publish worker pools:
// each worker runs its own dequeue/process/enqueue loop rather than pulling
// from a shared task channel, so unlike a classic worker pool there is no
// Submit — the loop function itself polls the bounded queue.
type WorkerGroup struct {
	wg sync.WaitGroup
}

// Go starts n goroutines, each running fn(workerIndex).
func (g *WorkerGroup) Go(n int, fn func(workerIndex int)) {
	g.wg.Add(n)
	for i := 0; i < n; i++ {
		idx := i
		go func() {
			defer g.wg.Done()
			fn(idx)
		}()
	}
}

// Wait blocks until every worker started by Go has returned.
func (g *WorkerGroup) Wait() {
	g.wg.Wait()
}
