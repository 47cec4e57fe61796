package arbitrage

import (
	"context"
	"fmt"

	"github.com/defistate/defistate-arbitrage-go/pools"
	"github.com/defistate/defistate-arbitrage-go/worker"
)

// Submitter queues a task for execution. *worker.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// Future is the pending result of CalculateWithWorker.
type Future struct {
	done   chan struct{}
	result *CalculationResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result *CalculationResult, err error) {
	f.result, f.err = result, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the calculation finishes or ctx ends.
func (f *Future) Wait(ctx context.Context) (*CalculationResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CalculateWithWorker runs Calculate on a worker. Overrides are resolved and
// V3 tick coverage is checked before submission, so caller errors surface
// here rather than through the Future.
func (c *Cycle) CalculateWithWorker(ctx context.Context, s Submitter, overrides ...Override) (*Future, error) {
	set, err := ResolveOverrides(overrides)
	if err != nil {
		return nil, err
	}
	if err := c.checkTicks(set); err != nil {
		return nil, err
	}
	if c.profitFactorCheck {
		if err := c.checkProfitFactor(set); err != nil {
			return nil, err
		}
	}

	f := newFuture()
	task := func(taskCtx context.Context) {
		if err := taskCtx.Err(); err != nil {
			f.complete(nil, fmt.Errorf("calculation for cycle %s not started: %w", c.id, err))
			return
		}
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("calculation panicked", "cycle", c.id, "panic", r)
				f.complete(nil, fmt.Errorf("calculation for cycle %s panicked: %v", c.id, r))
			}
		}()
		f.complete(c.calculate(set))
	}
	if err := s.Submit(ctx, task); err != nil {
		return nil, fmt.Errorf("submitting calculation for cycle %s: %w", c.id, err)
	}
	return f, nil
}

// checkTicks rejects V3 legs whose tick data is incomplete, looking at the
// override when there is one.
func (c *Cycle) checkTicks(overrides *OverrideSet) error {
	for i, p := range c.pools {
		pool, ok := p.(*pools.UniswapV3)
		if !ok {
			continue
		}
		sparse := pool.Sparse()
		if state := overrides.UniswapV3(pool.Address()); state != nil {
			sparse = state.Sparse
		}
		if sparse {
			return fmt.Errorf("%w: leg %d (pool %s)", ErrSparseTicks, i, pool.Address().Hex())
		}
	}
	return nil
}
