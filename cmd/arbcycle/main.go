// Command arbcycle evaluates configured arbitrage cycles. With an RPC URL it
// follows new heads and re-evaluates every cycle whose pools moved; without
// one it evaluates the configured snapshots once and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-arbitrage-go/arbitrage"
	"github.com/defistate/defistate-arbitrage-go/chains/ethereum"
	"github.com/defistate/defistate-arbitrage-go/config"
	"github.com/defistate/defistate-arbitrage-go/protocols/tokenregistry"
	"github.com/defistate/defistate-arbitrage-go/worker"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	envPath := flag.String("env", ".env", "Optional env file; ignored when missing.")
	flag.Parse()

	if err := run(*configPath, *envPath); err != nil {
		slog.Error("arbcycle failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	var envFiles []string
	if _, err := os.Stat(envPath); err == nil {
		envFiles = append(envFiles, envPath)
	}
	cfg, err := config.Load(configPath, envFiles...)
	if err != nil {
		return err
	}

	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(rootLogger)
	prometheusRegistry := prometheus.DefaultRegisterer

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	live, err := cfg.Pools.Build()
	if err != nil {
		return fmt.Errorf("failed to build pools: %w", err)
	}

	workers, err := worker.New(ctx, worker.Config{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    rootLogger.With("component", "worker"),
	})
	if err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer workers.Close()

	var (
		client     *ethereum.Client
		allowances arbitrage.AllowanceReader = noAllowances{}
	)
	if cfg.RPCURL != "" {
		client, err = ethereum.Dial(ctx, cfg.RPCURL, rootLogger.With("component", "ethereum"), prometheusRegistry,
			ethereum.WithUniswapV2Pools(live.UniswapV2...),
			ethereum.WithUniswapV3Pools(live.UniswapV3...),
			ethereum.WithCurvePools(live.Curve...),
		)
		if err != nil {
			return err
		}
		allowances = client.Reader()
	}

	r := &runner{
		cfg:     cfg,
		logger:  rootLogger,
		workers: workers,
		tokens:  tokenregistry.New(cfg.Tokens),
	}
	for _, cc := range cfg.Cycles {
		route, err := live.Route(cc)
		if err != nil {
			return err
		}
		opts := []arbitrage.Option{
			arbitrage.WithLogger(rootLogger.With("component", "cycle", "cycle", cc.ID)),
			arbitrage.WithRegisterer(prometheusRegistry),
			arbitrage.WithAllowanceReader(allowances),
		}
		if cc.ProfitFactorCheck {
			opts = append(opts, arbitrage.WithProfitFactorCheck())
		}
		cycle, err := arbitrage.New(arbitrage.Config{
			ID:         cc.ID,
			InputToken: cc.InputToken,
			Pools:      route,
			MaxInput:   cc.MaxInput,
		}, opts...)
		if err != nil {
			return err
		}
		defer cycle.Close()
		r.cycles = append(r.cycles, cycle)
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, rootLogger) })
	}

	g.Go(func() error {
		if err := r.evaluate(ctx, r.cycles); err != nil {
			return err
		}
		if client == nil {
			// nothing to follow; let the metrics server stop too
			stop()
			return nil
		}
		for update := range client.Updates() {
			changed := r.changed()
			rootLogger.Info("Block processed", "block", update.Block.Number, "updated_pools", update.Block.Updated, "cycles", len(changed))
			if err := r.evaluate(ctx, changed); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	if client != nil {
		client.Wait()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	workers *worker.Pool
	tokens  *tokenregistry.Registry
	cycles  []*arbitrage.Cycle
}

// changed returns the cycles with at least one leg updated since their last
// check.
func (r *runner) changed() []*arbitrage.Cycle {
	var out []*arbitrage.Cycle
	for _, c := range r.cycles {
		if len(c.ChangedLegs()) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// evaluate calculates cycles concurrently on the worker pool and reports
// every profitable one.
func (r *runner) evaluate(ctx context.Context, cycles []*arbitrage.Cycle) error {
	futures := make([]*arbitrage.Future, len(cycles))
	for i, c := range cycles {
		future, err := c.CalculateWithWorker(ctx, r.workers)
		switch {
		case err == nil:
			futures[i] = future
		case errors.Is(err, arbitrage.ErrNoArbitrage), errors.Is(err, arbitrage.ErrPrecondition):
			r.logger.Debug("Cycle skipped", "cycle", c.ID(), "reason", err)
		default:
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, future := range futures {
		if future == nil {
			continue
		}
		g.Go(func() error {
			result, err := future.Wait(ctx)
			if err != nil {
				if errors.Is(err, arbitrage.ErrNoArbitrage) {
					r.logger.Debug("No arbitrage", "cycle", cycles[i].ID())
					return nil
				}
				return err
			}
			r.report(ctx, cycles[i], result)
			return nil
		})
	}
	return g.Wait()
}

func (r *runner) report(ctx context.Context, c *arbitrage.Cycle, result *arbitrage.CalculationResult) {
	r.logger.Info("Arbitrage found",
		"cycle", c.ID(),
		"route", c.Name(),
		"input", r.tokens.Format(result.InputToken, result.InputAmount),
		"profit", r.tokens.Format(result.ProfitToken, result.ProfitAmount),
	)
	if r.cfg.Executor == (common.Address{}) {
		return
	}

	payloads, err := c.GeneratePayloads(ctx, r.cfg.Executor, result.InputAmount, result.SwapAmounts, r.cfg.InfiniteApproval)
	if err != nil {
		r.logger.Error("Failed to generate payloads", "cycle", c.ID(), "error", err)
		return
	}
	for i, p := range payloads {
		r.logger.Info("Payload",
			"cycle", c.ID(),
			"index", i,
			"target", p.Target.Hex(),
			"value", p.Value.String(),
			"calldata", hexutil.Encode(p.Calldata),
		)
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// noAllowances stands in when there is no node to ask; every approval is
// assumed missing.
type noAllowances struct{}

func (noAllowances) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}
