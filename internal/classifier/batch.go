package classifier

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/tphakala/soilnet-go/internal/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ClassifyBatch classifies every input concurrently and joins them.
// If any item fails, all results are discarded and the first error is
// returned; there is no partial success. See ClassifyBatchPartial.
func (e *Engine) ClassifyBatch(ctx context.Context, inputs [][]float32) ([]*Result, error) {
	results := make([]*Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, input := range inputs {
		g.Go(func() error {
			result, err := e.ClassifySync(gctx, input)
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ClassifyBatchPartial classifies every input with at most maxConcurrent
// in flight and returns one Outcome per input, in input order. Failures
// do not affect other items. maxConcurrent <= 0 means GOMAXPROCS.
func (e *Engine) ClassifyBatchPartial(ctx context.Context, inputs [][]float32, maxConcurrent int) []Outcome {
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	outcomes := make([]Outcome, len(inputs))
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	for i, input := range inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			cancelled := errors.New(err).
				Component("classifier").
				Category(errors.CategoryCancellation).
				Context("batch_index", i).
				Build()
			for j := i; j < len(inputs); j++ {
				outcomes[j] = Outcome{Err: cancelled}
			}
			break
		}
		wg.Go(func() {
			defer sem.Release(1)
			result, err := e.ClassifySync(ctx, input)
			outcomes[i] = Outcome{Result: result, Err: err}
		})
	}
	wg.Wait()
	return outcomes
}
