// Package arbitrage finds the most profitable input for a closed path of
// swaps across Uniswap V2, Uniswap V3 and Curve StableSwap pools, and turns
// the result into the calls of an arbitrage transaction.
package arbitrage

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/defistate/defistate-arbitrage-go/bitset"
	"github.com/defistate/defistate-arbitrage-go/pools"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxInput is used when Config.MaxInput is nil: 100 tokens of 18 decimals.
var DefaultMaxInput = new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Logger is the logging surface the cycle needs. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config describes the path of a cycle.
type Config struct {
	// ID labels results, logs and metrics.
	ID         string
	InputToken common.Address
	// Pools in swap order. The path must end in InputToken.
	Pools []pools.Pool
	// MaxInput bounds the optimizer's search. Nil means DefaultMaxInput.
	MaxInput *big.Int
}

func (c *Config) validate() error {
	if c.ID == "" {
		return errors.New("config: ID is required")
	}
	if c.InputToken == (common.Address{}) {
		return errors.New("config: InputToken is required")
	}
	for i, p := range c.Pools {
		if p == nil {
			return fmt.Errorf("config: pool %d is nil", i)
		}
	}
	if c.MaxInput != nil && c.MaxInput.Sign() <= 0 {
		return errors.New("config: MaxInput must be positive")
	}
	return nil
}

// Option configures a Cycle.
type Option interface {
	apply(*Cycle)
}

type funcOption func(*Cycle)

func (f funcOption) apply(c *Cycle) {
	f(c)
}

func newOption(f func(*Cycle)) Option {
	return funcOption(f)
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger Logger) Option {
	return newOption(func(c *Cycle) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithRegisterer registers the cycle's metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return newOption(func(c *Cycle) {
		c.registerer = reg
	})
}

// WithAllowanceReader sets the source of ERC-20 allowances for payloads that
// swap through Curve pools.
func WithAllowanceReader(r AllowanceReader) Option {
	return newOption(func(c *Cycle) {
		c.allowances = r
	})
}

// WithMaxIterations caps the optimizer's objective evaluations.
func WithMaxIterations(n int) Option {
	return newOption(func(c *Cycle) {
		if n > 0 {
			c.maxIterations = n
		}
	})
}

// WithProfitFactorCheck skips the optimizer when the product of the legs'
// marginal rates is below one. Factors within 1e-6 of one still run the
// optimizer, since the Curve rate comes from a finite quote.
func WithProfitFactorCheck() Option {
	return newOption(func(c *Cycle) {
		c.profitFactorCheck = true
	})
}

// Cycle is a fixed path of pools that starts and ends in the same token. It
// is safe for concurrent use; calculations read pool state without locking
// the cycle.
type Cycle struct {
	id         string
	inputToken common.Address
	pools      []pools.Pool
	vectors    []SwapVector
	maxInput   *big.Int

	logger            Logger
	registerer        prometheus.Registerer
	metrics           *Metrics
	allowances        AllowanceReader
	maxIterations     int
	profitFactorCheck bool

	// last known state of every pool, fed by OnStateChanged
	mu         sync.Mutex
	poolStates map[common.Address]any
	changed    bitset.BitSet
	legs       map[common.Address][]int
}

// New derives the swap vectors of cfg.Pools and subscribes the cycle to
// every pool.
func New(cfg Config, opts ...Option) (*Cycle, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	c := &Cycle{
		id:            cfg.ID,
		inputToken:    cfg.InputToken,
		pools:         append([]pools.Pool(nil), cfg.Pools...),
		logger:        slog.Default(),
		maxIterations: DefaultMaxIterations,
		poolStates:    make(map[common.Address]any, len(cfg.Pools)),
		changed:       bitset.NewBitSet(uint64(len(cfg.Pools))),
		legs:          make(map[common.Address][]int, len(cfg.Pools)),
	}
	for _, opt := range opts {
		opt.apply(c)
	}

	if cfg.MaxInput == nil {
		c.maxInput = new(big.Int).Set(DefaultMaxInput)
		c.logger.Warn("no max input configured, using default", "cycle", c.id, "max_input", c.maxInput)
	} else {
		c.maxInput = new(big.Int).Set(cfg.MaxInput)
	}

	vectors, err := deriveVectors(c.pools, c.inputToken)
	if err != nil {
		return nil, err
	}
	c.vectors = vectors

	if c.registerer == nil {
		c.registerer = prometheus.NewRegistry()
	}
	c.metrics = NewMetrics(c.registerer)

	for i, p := range c.pools {
		c.legs[p.Address()] = append(c.legs[p.Address()], i)
		p.Subscribe(c)
	}

	c.logger.Info("cycle created", "cycle", c.id, "path", c.Name(), "max_input", c.maxInput)
	return c, nil
}

// Calculate finds the most profitable input amount for the cycle, optionally
// pricing some pools against overridden state. ErrNoArbitrage is the normal
// outcome when no input makes a profit.
func (c *Cycle) Calculate(overrides ...Override) (*CalculationResult, error) {
	set, err := ResolveOverrides(overrides)
	if err != nil {
		c.metrics.CalculationsTotal.WithLabelValues(c.id, outcome(err)).Inc()
		return nil, err
	}
	return c.calculate(set)
}

func (c *Cycle) calculate(set *OverrideSet) (result *CalculationResult, err error) {
	start := time.Now()
	defer func() {
		c.metrics.CalculationDuration.WithLabelValues(c.id).Observe(time.Since(start).Seconds())
		c.metrics.CalculationsTotal.WithLabelValues(c.id, outcome(err)).Inc()
	}()

	if set.Len() > 0 {
		c.logger.Debug("calculating with overrides", "cycle", c.id, "pools", set.Addresses())
	}

	if c.profitFactorCheck {
		if err := c.checkProfitFactor(set); err != nil {
			return nil, err
		}
	}

	bestInput, bestProfit, err := c.optimize(set)
	if err != nil {
		return nil, err
	}

	amounts, err := c.buildSwapAmounts(bestInput, set)
	if err != nil {
		return nil, fmt.Errorf("%w: building swap amounts: %w", ErrNoArbitrage, err)
	}

	c.logger.Info("arbitrage found",
		"cycle", c.id,
		"input", bestInput,
		"profit", bestProfit,
	)
	return &CalculationResult{
		ID:           c.id,
		InputToken:   c.inputToken,
		ProfitToken:  c.inputToken,
		InputAmount:  bestInput,
		ProfitAmount: bestProfit,
		SwapAmounts:  amounts,
	}, nil
}

// OnStateChanged records the publisher's new state and marks its legs as
// changed. It implements pools.Subscriber.
func (c *Cycle) OnStateChanged(publisher pools.Pool) {
	var state any
	switch p := publisher.(type) {
	case *pools.UniswapV2:
		state = p.State()
	case *pools.UniswapV3:
		state = p.State()
	case *pools.CurveStableswap:
		state = p.State()
	default:
		c.logger.Warn("state change from unsupported pool", "cycle", c.id, "type", fmt.Sprintf("%T", publisher))
		return
	}

	addr := publisher.Address()
	c.mu.Lock()
	defer c.mu.Unlock()
	legs, ok := c.legs[addr]
	if !ok {
		return
	}
	c.poolStates[addr] = state
	for _, leg := range legs {
		c.changed.Set(uint64(leg))
	}
}

// PoolStates returns the last state seen for each pool that has notified
// the cycle since it was created.
func (c *Cycle) PoolStates() map[common.Address]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.poolStates)
}

// ChangedLegs returns the legs whose pools changed since the last call, and
// clears them.
func (c *Cycle) ChangedLegs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	indices := c.changed.Indices()
	c.changed.Clear()
	legs := make([]int, len(indices))
	for i, idx := range indices {
		legs[i] = int(idx)
	}
	return legs
}

// Close unsubscribes the cycle from its pools.
func (c *Cycle) Close() {
	for _, p := range c.pools {
		p.Unsubscribe(c)
	}
}

func (c *Cycle) ID() string                 { return c.id }
func (c *Cycle) InputToken() common.Address { return c.inputToken }
func (c *Cycle) MaxInput() *big.Int         { return new(big.Int).Set(c.maxInput) }
func (c *Cycle) Pools() []pools.Pool        { return append([]pools.Pool(nil), c.pools...) }
func (c *Cycle) Vectors() []SwapVector      { return append([]SwapVector(nil), c.vectors...) }

// Name is the path of pool addresses, "A → B → C".
func (c *Cycle) Name() string {
	parts := make([]string, len(c.pools))
	for i, p := range c.pools {
		parts[i] = p.Address().Hex()
	}
	return strings.Join(parts, " → ")
}
