package ethereum

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/defistate/defistate-arbitrage-go/calldata"
	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv2"
	"github.com/defistate/defistate-arbitrage-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdt     = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	lusd     = common.HexToAddress("0x5f98805A4E8be255a32880FDeC7F6728C6568bA0")
	threeCrv = common.HexToAddress("0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490")

	daiWethAddr = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")
	v3Addr      = common.HexToAddress("0x60594a405d53811d3BC4766596EFD80fd545A270")
	tripoolAddr = common.HexToAddress("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7")
	lusdPool    = common.HexToAddress("0xEd279fDD11cA84bEef15AF5D39BB4d4bEE23F0cA")
	lusdLP      = lusdPool
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

func daiWethState() uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  daiWethAddr,
		Token0:   dai,
		Token1:   weth,
		Reserve0: fromString("6504210380280092514247627"),
		Reserve1: fromString("2641882268814772168174"),
		FeeBps:   uniswapv2.DefaultFeeBps,
		Block:    19050173,
	}
}

// v3State carries liquidity on [-600, 600], all of it active at tick 0.
func v3State() uniswapv3.Pool {
	return uniswapv3.Pool{
		PoolViewMinimal: uniswapv3.PoolViewMinimal{
			Address:      v3Addr,
			Token0:       dai,
			Token1:       weth,
			Fee:          3000,
			TickSpacing:  60,
			Tick:         0,
			Liquidity:    fromString("1000000000000000000000"),
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		},
		Ticks: []uniswapv3.TickInfo{
			{Index: -600, LiquidityGross: fromString("1000000000000000000000"), LiquidityNet: fromString("1000000000000000000000")},
			{Index: 600, LiquidityGross: fromString("1000000000000000000000"), LiquidityNet: fromString("-1000000000000000000000")},
		},
		Block: 19050173,
	}
}

func tripoolState() curvestableswap.Pool {
	return curvestableswap.Pool{
		Address:       tripoolAddr,
		LPToken:       threeCrv,
		Coins:         []common.Address{dai, usdc, usdt},
		Decimals:      []uint8{18, 6, 6},
		Balances:      []*big.Int{fromString("42217927126053167268106015"), fromString("41857454785332"), fromString("116155337005450")},
		A:             big.NewInt(2000),
		Fee:           big.NewInt(1000000),
		AdminFee:      big.NewInt(5000000000),
		Legacy:        true,
		CoinIndexType: curvestableswap.CoinIndexInt128,
		LPTotalSupply: fromString("194000000000000000000000000"),
		Block:         19050173,
	}
}

func lusdMetapoolState() curvestableswap.Pool {
	base := tripoolState()
	return curvestableswap.Pool{
		Address:          lusdPool,
		LPToken:          lusdLP,
		Coins:            []common.Address{lusd, threeCrv},
		Decimals:         []uint8{18, 18},
		Balances:         []*big.Int{fromString("21000000000000000000000000"), fromString("20000000000000000000000000")},
		A:                big.NewInt(200),
		Fee:              big.NewInt(4000000),
		AdminFee:         big.NewInt(5000000000),
		CoinIndexType:    curvestableswap.CoinIndexInt128,
		LPTotalSupply:    fromString("40000000000000000000000000"),
		Base:             &base,
		BaseVirtualPrice: fromString("1030000000000000000"),
	}
}

type slot0 struct {
	price *big.Int
	tick  int64
}

// fakeNode answers eth_call from in-memory contract storage and hands out
// head subscriptions the test can feed and break.
type fakeNode struct {
	mu        sync.Mutex
	reserves  map[common.Address][2]*big.Int
	slot0     map[common.Address]slot0
	liquidity map[common.Address]*big.Int
	balances  map[common.Address][]*big.Int
	a         map[common.Address]*big.Int
	virtual   map[common.Address]*big.Int
	supply    map[common.Address]*big.Int
	allowance *big.Int
	failing   map[common.Address]error
	calls     int

	subscriptions chan *fakeSubscription
	subscribeErr  error
}

type fakeSubscription struct {
	heads chan<- *types.Header
	drop  chan error
}

func newFakeNode() *fakeNode {
	tri := tripoolState()
	meta := lusdMetapoolState()
	v3 := v3State()
	v2 := daiWethState()
	return &fakeNode{
		reserves:      map[common.Address][2]*big.Int{v2.Address: {v2.Reserve0, v2.Reserve1}},
		slot0:         map[common.Address]slot0{v3.Address: {v3.SqrtPriceX96, v3.Tick}},
		liquidity:     map[common.Address]*big.Int{v3.Address: v3.Liquidity},
		balances:      map[common.Address][]*big.Int{tri.Address: tri.Balances, meta.Address: meta.Balances},
		a:             map[common.Address]*big.Int{tri.Address: tri.A, meta.Address: meta.A},
		virtual:       map[common.Address]*big.Int{tri.Address: meta.BaseVirtualPrice},
		supply:        map[common.Address]*big.Int{threeCrv: tri.LPTotalSupply, lusdLP: meta.LPTotalSupply},
		allowance:     big.NewInt(0),
		failing:       map[common.Address]error{},
		subscriptions: make(chan *fakeSubscription, 4),
	}
}

func (f *fakeNode) setReserves(addr common.Address, r0, r1 *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves[addr] = [2]*big.Int{r0, r1}
}

func (f *fakeNode) setBalance(addr common.Address, i int, b *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balances := append([]*big.Int(nil), f.balances[addr]...)
	balances[i] = b
	f.balances[addr] = balances
}

func (f *fakeNode) fail(addr common.Address, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[addr] = err
}

func isMethod(contract abi.ABI, method string, data []byte) bool {
	return len(data) >= 4 && bytes.Equal(contract.Methods[method].ID, data[:4])
}

func (f *fakeNode) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	to := *msg.To
	if err := f.failing[to]; err != nil {
		return nil, err
	}
	data := msg.Data
	pair, curve := calldata.UniswapV2PairABI, calldata.CurveInt128ABI
	v3, erc20 := calldata.UniswapV3PoolABI, calldata.ERC20ABI

	switch {
	case isMethod(pair, "getReserves", data):
		if r, ok := f.reserves[to]; ok {
			return pair.Methods["getReserves"].Outputs.Pack(r[0], r[1], uint32(1705708800))
		}
	case isMethod(v3, "slot0", data):
		if s, ok := f.slot0[to]; ok {
			return v3.Methods["slot0"].Outputs.Pack(s.price, big.NewInt(s.tick), uint16(1), uint16(1), uint16(1), uint8(0), true)
		}
	case isMethod(v3, "liquidity", data):
		if l, ok := f.liquidity[to]; ok {
			return v3.Methods["liquidity"].Outputs.Pack(l)
		}
	case isMethod(curve, "balances", data):
		args, err := curve.Methods["balances"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		i := int(args[0].(*big.Int).Int64())
		if balances, ok := f.balances[to]; ok && i < len(balances) {
			return curve.Methods["balances"].Outputs.Pack(balances[i])
		}
	case isMethod(curve, "A", data):
		if a, ok := f.a[to]; ok {
			return curve.Methods["A"].Outputs.Pack(a)
		}
	case isMethod(curve, "get_virtual_price", data):
		if v, ok := f.virtual[to]; ok {
			return curve.Methods["get_virtual_price"].Outputs.Pack(v)
		}
	case isMethod(erc20, "totalSupply", data):
		if supply, ok := f.supply[to]; ok {
			return erc20.Methods["totalSupply"].Outputs.Pack(supply)
		}
	case isMethod(erc20, "allowance", data):
		return erc20.Methods["allowance"].Outputs.Pack(f.allowance)
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeNode) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	s := &fakeSubscription{heads: ch, drop: make(chan error, 1)}
	f.subscriptions <- s
	return event.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-quit:
			return nil
		case err := <-s.drop:
			return err
		}
	}), nil
}

func header(n int64) *types.Header {
	return &types.Header{Number: big.NewInt(n), Time: uint64(1705708800 + 12*n)}
}
