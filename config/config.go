// Package config loads the arbcycle configuration: the node to follow, the
// pools to track with their starting snapshots, and the cycles to evaluate.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"runtime"
	"strings"

	"github.com/defistate/defistate-arbitrage-go/pools"
	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	"github.com/defistate/defistate-arbitrage-go/protocols/tokenregistry"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that take precedence over the file.
const (
	EnvRPCURL      = "ARBCYCLE_RPC_URL"
	EnvLogLevel    = "ARBCYCLE_LOG_LEVEL"
	EnvMetricsAddr = "ARBCYCLE_METRICS_ADDR"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the top-level configuration file.
type Config struct {
	// RPCURL is a websocket or IPC endpoint. When empty the configured
	// snapshots are evaluated once and nothing is refreshed.
	RPCURL      string `yaml:"rpcURL"`
	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`

	// Executor is the contract that runs the payloads. Payloads are only
	// generated when it is set.
	Executor         common.Address `yaml:"executor"`
	InfiniteApproval bool           `yaml:"infiniteApproval"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`

	// Tokens are only used to label and scale amounts in reports.
	Tokens []tokenregistry.Token `yaml:"tokens"`
	Pools  Pools                 `yaml:"pools"`
	Cycles []Cycle               `yaml:"cycles"`
}

// Pools holds the starting snapshot of every tracked pool.
type Pools struct {
	UniswapV2 []uniswapv2.Pool       `yaml:"uniswapV2"`
	UniswapV3 []uniswapv3.Pool       `yaml:"uniswapV3"`
	Curve     []curvestableswap.Pool `yaml:"curve"`
}

type Cycle struct {
	ID                string           `yaml:"id"`
	InputToken        common.Address   `yaml:"inputToken"`
	Pools             []common.Address `yaml:"pools"`
	MaxInput          *big.Int         `yaml:"maxInput"`
	ProfitFactorCheck bool             `yaml:"profitFactorCheck"`
}

// Load reads the YAML file at path. Any envFiles are loaded into the
// environment first; variables already set are left alone.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a configuration, applies environment overrides and defaults,
// and validates the result. Unknown fields are rejected.
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvRPCURL); ok {
		c.RPCURL = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize == 0 {
		c.QueueSize = 2 * len(c.Cycles)
	}
}

func (c *Config) validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalid)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queueSize must not be negative", ErrInvalid)
	}

	tokens := make(map[common.Address]struct{}, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Address == (common.Address{}) {
			return fmt.Errorf("%w: token %q without address", ErrInvalid, t.Symbol)
		}
		if _, dup := tokens[t.Address]; dup {
			return fmt.Errorf("%w: token %s listed twice", ErrInvalid, t.Address.Hex())
		}
		tokens[t.Address] = struct{}{}
	}

	known := make(map[common.Address]string)
	add := func(kind string, addr common.Address) error {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: %s pool without address", ErrInvalid, kind)
		}
		if prev, dup := known[addr]; dup {
			return fmt.Errorf("%w: pool %s listed as %s and %s", ErrInvalid, addr.Hex(), prev, kind)
		}
		known[addr] = kind
		return nil
	}
	for _, p := range c.Pools.UniswapV2 {
		if err := add(pools.KindUniswapV2.String(), p.Address); err != nil {
			return err
		}
	}
	for _, p := range c.Pools.UniswapV3 {
		if err := add(pools.KindUniswapV3.String(), p.Address); err != nil {
			return err
		}
	}
	for _, p := range c.Pools.Curve {
		if err := add(pools.KindCurveStableswap.String(), p.Address); err != nil {
			return err
		}
	}

	if len(c.Cycles) == 0 {
		return fmt.Errorf("%w: no cycles", ErrInvalid)
	}
	ids := make(map[string]struct{}, len(c.Cycles))
	for i, cy := range c.Cycles {
		if cy.ID == "" {
			return fmt.Errorf("%w: cycle %d has no id", ErrInvalid, i)
		}
		if _, dup := ids[cy.ID]; dup {
			return fmt.Errorf("%w: duplicate cycle id %q", ErrInvalid, cy.ID)
		}
		ids[cy.ID] = struct{}{}

		if cy.InputToken == (common.Address{}) {
			return fmt.Errorf("%w: cycle %q has no input token", ErrInvalid, cy.ID)
		}
		if len(cy.Pools) < 2 {
			return fmt.Errorf("%w: cycle %q needs at least two pools", ErrInvalid, cy.ID)
		}
		for _, addr := range cy.Pools {
			if _, ok := known[addr]; !ok {
				return fmt.Errorf("%w: cycle %q uses unknown pool %s", ErrInvalid, cy.ID, addr.Hex())
			}
		}
		if cy.MaxInput != nil && cy.MaxInput.Sign() <= 0 {
			return fmt.Errorf("%w: cycle %q maxInput must be positive", ErrInvalid, cy.ID)
		}
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalid, level)
}

// Live holds a live handle for every configured pool.
type Live struct {
	UniswapV2 []*pools.UniswapV2
	UniswapV3 []*pools.UniswapV3
	Curve     []*pools.CurveStableswap

	byAddress map[common.Address]pools.Pool
}

// Build creates the live pool handles from the configured snapshots.
func (p Pools) Build() (*Live, error) {
	live := &Live{byAddress: make(map[common.Address]pools.Pool)}
	for _, s := range p.UniswapV2 {
		pool, err := pools.NewUniswapV2(s)
		if err != nil {
			return nil, err
		}
		live.UniswapV2 = append(live.UniswapV2, pool)
		live.byAddress[pool.Address()] = pool
	}
	for _, s := range p.UniswapV3 {
		pool, err := pools.NewUniswapV3(s)
		if err != nil {
			return nil, err
		}
		live.UniswapV3 = append(live.UniswapV3, pool)
		live.byAddress[pool.Address()] = pool
	}
	for _, s := range p.Curve {
		pool, err := pools.NewCurveStableswap(s)
		if err != nil {
			return nil, err
		}
		live.Curve = append(live.Curve, pool)
		live.byAddress[pool.Address()] = pool
	}
	return live, nil
}

// Route returns the live pools of a cycle in order.
func (l *Live) Route(cy Cycle) ([]pools.Pool, error) {
	route := make([]pools.Pool, 0, len(cy.Pools))
	for _, addr := range cy.Pools {
		p, ok := l.byAddress[addr]
		if !ok {
			return nil, fmt.Errorf("%w: cycle %q uses unknown pool %s", ErrInvalid, cy.ID, addr.Hex())
		}
		route = append(route, p)
	}
	return route, nil
}
