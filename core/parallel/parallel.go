// Package parallel splits row ranges across CPU cores.
package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// ParallelizeErr runs fn over contiguous ranges of [0, items) on at most
// workers goroutines (0 means runtime.NumCPU). It returns the error of the
// lowest failing range; a panic inside fn is returned as *errors.PanicError.
func ParallelizeErr(items, workers int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}

	numWorkers := workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}

	// Ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers
	errs := make([]error, numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(slot, s, e int) {
			defer wg.Done()
			errs[slot] = errors.SafeExecute("parallel range", func() error {
				return fn(s, e)
			})
		}(i, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ParallelizeErrWithThreshold is ParallelizeErr that stays on the calling
// goroutine when items does not exceed threshold.
func ParallelizeErrWithThreshold(items, threshold, workers int, fn func(start, end int) error) error {
	if items <= threshold {
		if items <= 0 {
			return nil
		}
		return errors.SafeExecute("parallel range", func() error {
			return fn(0, items)
		})
	}
	return ParallelizeErr(items, workers, fn)
}
