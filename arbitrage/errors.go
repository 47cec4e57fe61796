package arbitrage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrConfig is returned by New when the pools do not form a usable cycle.
	ErrConfig = errors.New("invalid cycle configuration")

	// ErrNoArbitrage is the expected outcome when the cycle is not profitable
	// at the optimum or the optimum cannot be turned into swap amounts.
	ErrNoArbitrage = errors.New("no profitable arbitrage")
	// ErrEmptySwapAmounts is returned by GeneratePayloads for an empty amount
	// list, which happens when a state update raced the calculation.
	ErrEmptySwapAmounts = fmt.Errorf("%w: swap amounts empty, abandoning payload generation", ErrNoArbitrage)

	// ErrPrecondition marks caller errors on public calls.
	ErrPrecondition        = errors.New("precondition violated")
	ErrUnsupportedOverride = fmt.Errorf("%w: unsupported override", ErrPrecondition)
	ErrSparseTicks         = fmt.Errorf("%w: uniswap v3 pool has sparse tick data", ErrPrecondition)
	ErrUnsupportedPool     = fmt.Errorf("%w: unsupported pool type", ErrPrecondition)

	// ErrZeroOutput is wrapped in a ProbeError when a leg quotes nothing.
	ErrZeroOutput = errors.New("zero-output swap")
)

// ProbeError reports why a single evaluation of the cycle failed. It never
// escapes Calculate; the optimizer scores the probe as a total loss.
type ProbeError struct {
	Leg  int
	Pool common.Address
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("leg %d (pool %s): %v", e.Leg, e.Pool.Hex(), e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
