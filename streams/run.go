package streams

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// RunOptions ...
type RunOptions struct {
	// Concurrency is the number of goroutines calling Upload.
	// Default: min(NumCPU * 3, 20), minimum 2
	Concurrency int
}

// DefaultConcurrency calculates the default concurrency based on CPU count.
func DefaultConcurrency() int {
	c := runtime.NumCPU() * 3

	if c > 20 {
		c = 20
	}

	if c < 2 {
		c = 2
	}

	return c
}

// Run uploads every batch received from batches until the channel is closed,
// then commits the execution. Failed batches don't stop the run; their errors
// are returned together with the commit result. If the context is cancelled
// nothing is committed and the caller should Abort.
func Run[T any](ctx context.Context, client Client[T], batches <-chan []T, opts RunOptions) (Execution, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}

	var (
		mu         sync.Mutex
		uploadErrs []error
		wg         sync.WaitGroup
	)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case rows, ok := <-batches:
					if !ok {
						return
					}
					if _, err := client.Upload(ctx, rows); err != nil {
						mu.Lock()
						uploadErrs = append(uploadErrs, err)
						mu.Unlock()
					}
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Execution{}, fmt.Errorf("upload cancelled: %w", err)
	}

	uploadErr := errors.Join(uploadErrs...)
	if uploadErr != nil {
		client.inner.logger.Warnf("%d batch(es) failed to upload", len(uploadErrs))
	}

	execution, err := client.Commit(ctx)
	if err != nil {
		return Execution{}, errors.Join(err, uploadErr)
	}

	return execution, uploadErr
}
