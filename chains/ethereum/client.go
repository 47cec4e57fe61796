// Package ethereum keeps live pools in step with an Ethereum node. A Client
// follows new heads and, at every block, re-reads each tracked pool, diffs the
// result against its last snapshot and pushes the changes into the pools.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/defistate/defistate-arbitrage-go/chains"
	"github.com/defistate/defistate-arbitrage-go/pools"
	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	defaultConcurrency = 16
)

// Update reports what changed at one block.
type Update struct {
	Block     chains.BlockSummary
	UniswapV2 uniswapv2.UniswapV2Diff
	UniswapV3 uniswapv3.UniswapV3Diff
	Curve     curvestableswap.CurveStableswapDiff
}

// Client refreshes tracked pools on every new head.
// Its lifecycle is bound to the context passed to New or Dial.
type Client struct {
	backend chains.Backend
	reader  *Reader
	logger  chains.Logger
	metrics *metrics

	updateCh chan *Update

	uniswapV2   []*pools.UniswapV2
	uniswapV3   []*pools.UniswapV3
	curve       []*pools.CurveStableswap
	concurrency int

	uniswapV2ByAddr map[common.Address]*pools.UniswapV2
	uniswapV3ByAddr map[common.Address]*pools.UniswapV3
	curveByAddr     map[common.Address]*pools.CurveStableswap

	// last snapshots, owned by the loop goroutine
	uniswapV2State []uniswapv2.Pool
	uniswapV3State []uniswapv3.Pool
	curveState     []curvestableswap.Pool

	onStop func()
	ctx    context.Context
	wg     sync.WaitGroup
}

// Option configures the Client.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(c *Client) {
	f(c)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

func WithUniswapV2Pools(ps ...*pools.UniswapV2) Option {
	return newOption(func(c *Client) {
		c.uniswapV2 = append(c.uniswapV2, ps...)
	})
}

func WithUniswapV3Pools(ps ...*pools.UniswapV3) Option {
	return newOption(func(c *Client) {
		c.uniswapV3 = append(c.uniswapV3, ps...)
	})
}

func WithCurvePools(ps ...*pools.CurveStableswap) Option {
	return newOption(func(c *Client) {
		c.curve = append(c.curve, ps...)
	})
}

// WithConcurrency bounds the number of pools read at once. Values below 1 are
// ignored.
func WithConcurrency(n int) Option {
	return newOption(func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	})
}

// Dial connects to a websocket or IPC endpoint and starts a Client on it. The
// connection is closed once ctx is cancelled.
func Dial(
	ctx context.Context,
	url string,
	logger chains.Logger,
	prometheusRegistry prometheus.Registerer,
	opts ...Option,
) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node: %w", err)
	}
	c, err := newClient(ctx, ec, logger, prometheusRegistry, opts...)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.onStop = ec.Close
	c.start()
	logger.Info("Client started", "url", url)
	return c, nil
}

// New starts a Client on an existing backend.
func New(
	ctx context.Context,
	backend chains.Backend,
	logger chains.Logger,
	prometheusRegistry prometheus.Registerer,
	opts ...Option,
) (*Client, error) {
	c, err := newClient(ctx, backend, logger, prometheusRegistry, opts...)
	if err != nil {
		return nil, err
	}
	c.start()
	return c, nil
}

func newClient(
	ctx context.Context,
	backend chains.Backend,
	logger chains.Logger,
	prometheusRegistry prometheus.Registerer,
	opts ...Option,
) (*Client, error) {
	if backend == nil {
		return nil, errors.New("config: backend is required")
	}
	if logger == nil {
		return nil, errors.New("config: logger is required")
	}
	if prometheusRegistry == nil {
		prometheusRegistry = prometheus.NewRegistry()
	}

	c := &Client{
		backend:     backend,
		reader:      NewReader(backend),
		logger:      logger,
		metrics:     newMetrics(prometheusRegistry),
		updateCh:    make(chan *Update, 1),
		concurrency: defaultConcurrency,
		ctx:         ctx,
	}
	for _, opt := range opts {
		opt.apply(c)
	}

	c.uniswapV2ByAddr = make(map[common.Address]*pools.UniswapV2, len(c.uniswapV2))
	for _, p := range c.uniswapV2 {
		if _, dup := c.uniswapV2ByAddr[p.Address()]; dup {
			continue
		}
		c.uniswapV2ByAddr[p.Address()] = p
		c.uniswapV2State = append(c.uniswapV2State, p.State())
	}
	c.uniswapV3ByAddr = make(map[common.Address]*pools.UniswapV3, len(c.uniswapV3))
	for _, p := range c.uniswapV3 {
		if _, dup := c.uniswapV3ByAddr[p.Address()]; dup {
			continue
		}
		c.uniswapV3ByAddr[p.Address()] = p
		c.uniswapV3State = append(c.uniswapV3State, p.State())
	}
	c.curveByAddr = make(map[common.Address]*pools.CurveStableswap, len(c.curve))
	for _, p := range c.curve {
		if _, dup := c.curveByAddr[p.Address()]; dup {
			continue
		}
		c.curveByAddr[p.Address()] = p
		c.curveState = append(c.curveState, p.State())
	}
	return c, nil
}

func (c *Client) start() {
	c.wg.Add(1)
	go c.run()
}

// Updates is best-effort; if the consumer is slow, updates are dropped. The
// pools themselves are always updated.
func (c *Client) Updates() <-chan *Update {
	return c.updateCh
}

// Reader returns the Reader the Client refreshes pools with. It shares the
// Client's connection.
func (c *Client) Reader() *Reader {
	return c.reader
}

// Wait blocks until the Client has stopped.
func (c *Client) Wait() {
	c.wg.Wait()
}

// refresh reads every tracked pool at the header's block and applies the
// changes. Only the run loop calls it.
func (c *Client) refresh(ctx context.Context, header *types.Header) (*Update, error) {
	if header == nil || header.Number == nil {
		return nil, errors.New("header without block number")
	}
	start := time.Now()
	block := header.Number

	v2, v3, curve, err := c.fetch(ctx, block, header.Time)
	if err != nil {
		c.metrics.refreshErrors.Inc()
		return nil, err
	}

	update := &Update{
		Block: chains.BlockSummary{
			Number:     new(big.Int).Set(block),
			Hash:       header.Hash(),
			Timestamp:  header.Time,
			ReceivedAt: start.UnixNano(),
		},
		UniswapV2: uniswapv2.Differ(c.uniswapV2State, v2),
		UniswapV3: uniswapv3.Differ(c.uniswapV3State, v3),
		Curve:     curvestableswap.Differ(c.curveState, curve),
	}

	nextV2, err := uniswapv2.Patcher(c.uniswapV2State, update.UniswapV2)
	if err != nil {
		return nil, fmt.Errorf("failed to patch uniswap v2 state: %w", err)
	}
	nextV3, err := uniswapv3.Patcher(c.uniswapV3State, update.UniswapV3)
	if err != nil {
		return nil, fmt.Errorf("failed to patch uniswap v3 state: %w", err)
	}
	nextCurve, err := curvestableswap.Patcher(c.curveState, update.Curve)
	if err != nil {
		return nil, fmt.Errorf("failed to patch curve state: %w", err)
	}
	c.uniswapV2State, c.uniswapV3State, c.curveState = nextV2, nextV3, nextCurve

	update.Block.Updated = c.apply(update)

	c.metrics.refreshDuration.Observe(time.Since(start).Seconds())
	if f, _ := block.Float64(); f > 0 {
		c.metrics.blockNumber.Set(f)
	}
	c.logger.Info("Pools refreshed",
		"block", block,
		"updated", update.Block.Updated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return update, nil
}

// fetch reads every pool at block. A single failure fails the block so that
// no cycle sees pools from different blocks.
func (c *Client) fetch(ctx context.Context, block *big.Int, timestamp uint64) ([]uniswapv2.Pool, []uniswapv3.Pool, []curvestableswap.Pool, error) {
	v2 := make([]uniswapv2.Pool, len(c.uniswapV2State))
	v3 := make([]uniswapv3.Pool, len(c.uniswapV3State))
	curve := make([]curvestableswap.Pool, len(c.curveState))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, s := range c.uniswapV2State {
		g.Go(func() error {
			next, err := c.reader.UniswapV2(ctx, s, block)
			if err != nil {
				return fmt.Errorf("uniswap v2 pool %s: %w", s.Address.Hex(), err)
			}
			v2[i] = next
			return nil
		})
	}
	for i, s := range c.uniswapV3State {
		g.Go(func() error {
			next, err := c.reader.UniswapV3(ctx, s, block)
			if err != nil {
				return fmt.Errorf("uniswap v3 pool %s: %w", s.Address.Hex(), err)
			}
			v3[i] = next
			return nil
		})
	}
	for i, s := range c.curveState {
		g.Go(func() error {
			next, err := c.reader.Curve(ctx, s, block, timestamp)
			if err != nil {
				return fmt.Errorf("curve pool %s: %w", s.Address.Hex(), err)
			}
			curve[i] = next
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return v2, v3, curve, nil
}

// apply pushes updated snapshots into the live pools and returns how many
// of them changed.
func (c *Client) apply(update *Update) int {
	updated := 0
	record := func(kind pools.Kind, addr common.Address, changed bool, err error) {
		if err != nil {
			c.logger.Error("Failed to update pool", "protocol", kind.String(), "pool", addr.Hex(), "err", err)
			return
		}
		if changed {
			updated++
			c.metrics.poolUpdates.WithLabelValues(kind.String()).Inc()
		}
	}

	for _, s := range update.UniswapV2.Updates {
		if p, ok := c.uniswapV2ByAddr[s.Address]; ok {
			changed, err := p.Update(s)
			record(pools.KindUniswapV2, s.Address, changed, err)
		}
	}
	for _, s := range update.UniswapV3.Updates {
		if p, ok := c.uniswapV3ByAddr[s.Address]; ok {
			changed, err := p.Update(s)
			record(pools.KindUniswapV3, s.Address, changed, err)
			if err == nil && s.Sparse {
				c.logger.Warn("Tick data no longer matches active liquidity", "pool", s.Address.Hex())
			}
		}
	}
	for _, s := range update.Curve.Updates {
		if p, ok := c.curveByAddr[s.Address]; ok {
			changed, err := p.Update(s)
			record(pools.KindCurveStableswap, s.Address, changed, err)
		}
	}
	return updated
}

func (c *Client) run() {
	defer c.wg.Done()
	defer func() {
		close(c.updateCh)
		if c.onStop != nil {
			c.onStop()
		}
		c.logger.Info("Client stopped")
	}()

	reconnectDelay := initialReconnectDelay
	for {
		if c.ctx.Err() != nil {
			return
		}

		err := c.follow(func() { reconnectDelay = initialReconnectDelay })
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.metrics.resubscriptions.Inc()
		c.logger.Error("Head subscription failed, will resubscribe...", "err", err, "delay", reconnectDelay)

		select {
		case <-time.After(reconnectDelay):
		case <-c.ctx.Done():
			return
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}
}

// follow subscribes to new heads and refreshes on each until the
// subscription fails or the context ends.
func (c *Client) follow(onSubscribed func()) error {
	heads := make(chan *types.Header, 16)
	sub, err := c.backend.SubscribeNewHead(c.ctx, heads)
	if err != nil {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		return fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	defer sub.Unsubscribe()
	onSubscribed()
	c.logger.Info("Subscribed to new heads")

	for {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()

		case err := <-sub.Err():
			if err == nil {
				return errors.New("head subscription closed")
			}
			return err

		case header := <-heads:
			header, skipped := latest(header, heads)
			if skipped > 0 {
				c.logger.Debug("Skipped stale heads", "count", skipped, "block", header.Number)
			}

			update, err := c.refresh(c.ctx, header)
			if err != nil {
				if c.ctx.Err() != nil {
					return c.ctx.Err()
				}
				c.logger.Error("Failed to refresh pools", "block", header.Number, "err", err)
				continue
			}

			select {
			case c.updateCh <- update:
			default:
				c.logger.Warn("Update buffer full, discarding update...", "block", header.Number)
			}
		}
	}
}

// latest drains heads that are already queued and returns the newest one.
func latest(header *types.Header, heads <-chan *types.Header) (*types.Header, int) {
	skipped := 0
	for {
		select {
		case next := <-heads:
			header = next
			skipped++
		default:
			return header, skipped
		}
	}
}
