// Package worker is the bounded pool behind batch extraction. It caps
// how many tasks run at once, surfaces each outcome through a callback
// in completion order, and treats task failures as data on the result
// rather than aborting the run, unless the caller opts into fail-fast.
// Retrying belongs to the provider router, not to this pool.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FailurePolicy controls how the pool reacts to a failed task.
type FailurePolicy int

const (
	// FailurePolicyContinue keeps processing remaining items; failures
	// stay on their results.
	FailurePolicyContinue FailurePolicy = iota
	// FailurePolicyFailFast cancels the run on the first task error.
	FailurePolicyFailFast
)

// DefaultMaxConcurrent bounds in-flight tasks when Options does not.
const DefaultMaxConcurrent = 4

// Options tunes one pool run.
type Options struct {
	// MaxConcurrent is how many tasks may run at once.
	MaxConcurrent int

	// RateLimitRPS is a global admission limit across all workers.
	// Set to <=0 to disable.
	RateLimitRPS float64

	// TaskTimeout bounds a single task; 0 leaves tasks unbounded, which
	// is the norm here since extraction requests carry their own
	// per-attempt timeouts.
	TaskTimeout time.Duration

	FailurePolicy FailurePolicy
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	return o
}

// Result holds the outcome for one input item.
type Result[In any, Out any] struct {
	// Index is the item's position in the submitted slice, so callers
	// can reassemble submission order from completion-order callbacks.
	Index  int
	Input  In
	Output Out
	Err    error
}

// ProcessAll runs process over all items under the concurrency bound and
// returns results in submission order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	process func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, process, nil, opts)
}

// ProcessAllWithCallback additionally invokes onResult as each item
// finishes, in actual completion order. A non-nil callback error cancels
// the run.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	process func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))

	type job struct {
		idx int
		in  In
	}

	jobs := make(chan job)
	done := make(chan Result[In, Out], opts.MaxConcurrent)

	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	workerFn := func() {
		defer wg.Done()
		for j := range jobs {
			if runCtx.Err() != nil {
				return
			}
			res := runOne(runCtx, j.idx, j.in, process, limiter, opts)
			select {
			case done <- res:
			case <-runCtx.Done():
				return
			}
			if res.Err != nil && opts.FailurePolicy == FailurePolicyFailFast {
				fail(res.Err)
				return
			}
		}
	}

	for i := 0; i < opts.MaxConcurrent; i++ {
		wg.Add(1)
		go workerFn()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	for res := range done {
		out[res.Index] = res
		if onResult != nil {
			if err := onResult(res); err != nil {
				fail(err)
			}
		}
	}

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func runOne[In any, Out any](
	ctx context.Context,
	idx int,
	item In,
	process func(context.Context, In) (Out, error),
	limiter *rate.Limiter,
	opts Options,
) Result[In, Out] {
	res := Result[In, Out]{Index: idx, Input: item}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}
	taskCtx := ctx
	if opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, opts.TaskTimeout)
		defer cancel()
	}
	res.Output, res.Err = process(taskCtx, item)
	return res
}
