package common

import (
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// RunTasks fans n tasks out over pool and blocks until all have finished. A WaitGroup provides the
// barrier since the pool itself only returns once its workers idle out.
//
// Parameters:
//   - pool: the worker pool to submit to
//   - n: number of tasks, each called with its index
//   - fn: the task body
//
// Returns:
//   - error: the first error any task returned
func RunTasks(pool worker.DynamicWorkerPool, n int, fn func(i int) error) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		id := i
		pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				err := fn(id)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
				return nil, err
			},
		})
	}
	wg.Wait()
	return firstErr
}
