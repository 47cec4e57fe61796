// Package calldata encodes the contract calls an arbitrage executes and
// decodes the few view calls it needs to read back.
package calldata

import (
	"errors"
	"fmt"
	"math/big"

	curvestableswap "github.com/defistate/defistate-arbitrage-go/protocols/curvestableswap"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidArgument  = errors.New("calldata: invalid argument")
	ErrUnexpectedOutput = errors.New("calldata: unexpected output")
)

// Transfer encodes ERC-20 transfer(to, amount).
func Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	if err := checkUint(amount); err != nil {
		return nil, err
	}
	return ERC20ABI.Pack("transfer", to, amount)
}

// Approve encodes ERC-20 approve(spender, amount).
func Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	if err := checkUint(amount); err != nil {
		return nil, err
	}
	return ERC20ABI.Pack("approve", spender, amount)
}

// Allowance encodes ERC-20 allowance(owner, spender).
func Allowance(owner, spender common.Address) ([]byte, error) {
	return ERC20ABI.Pack("allowance", owner, spender)
}

// DecodeAllowance decodes the return data of allowance.
func DecodeAllowance(out []byte) (*big.Int, error) {
	return unpackBigInt(ERC20ABI, "allowance", out)
}

// TotalSupply encodes ERC-20 totalSupply().
func TotalSupply() ([]byte, error) {
	return ERC20ABI.Pack("totalSupply")
}

func DecodeTotalSupply(out []byte) (*big.Int, error) {
	return unpackBigInt(ERC20ABI, "totalSupply", out)
}

// UniswapV2Swap encodes pair.swap(amount0Out, amount1Out, to, data). Exactly
// one of the amounts is expected to be non-zero; the pair must already hold
// the input.
func UniswapV2Swap(amount0Out, amount1Out *big.Int, to common.Address, data []byte) ([]byte, error) {
	if err := checkUint(amount0Out); err != nil {
		return nil, err
	}
	if err := checkUint(amount1Out); err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return UniswapV2PairABI.Pack("swap", amount0Out, amount1Out, to, data)
}

func UniswapV2GetReserves() ([]byte, error) {
	return UniswapV2PairABI.Pack("getReserves")
}

// DecodeReserves decodes getReserves into the two reserves and the pair's
// last update timestamp.
func DecodeReserves(out []byte) (reserve0, reserve1 *big.Int, timestamp uint32, err error) {
	values, err := UniswapV2PairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to unpack getReserves: %w", err)
	}
	if len(values) != 3 {
		return nil, nil, 0, fmt.Errorf("%w: getReserves returned %d values", ErrUnexpectedOutput, len(values))
	}
	r0, ok0 := values[0].(*big.Int)
	r1, ok1 := values[1].(*big.Int)
	ts, ok2 := values[2].(uint32)
	if !ok0 || !ok1 || !ok2 {
		return nil, nil, 0, fmt.Errorf("%w: getReserves types %T, %T, %T", ErrUnexpectedOutput, values[0], values[1], values[2])
	}
	return r0, r1, ts, nil
}

// UniswapV3Swap encodes pool.swap(recipient, zeroForOne, amountSpecified,
// sqrtPriceLimitX96, data). A positive amountSpecified is an exact input.
func UniswapV3Swap(recipient common.Address, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *big.Int, data []byte) ([]byte, error) {
	if amountSpecified == nil {
		return nil, fmt.Errorf("%w: nil amountSpecified", ErrInvalidArgument)
	}
	if err := checkUint(sqrtPriceLimitX96); err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return UniswapV3PoolABI.Pack("swap", recipient, zeroForOne, amountSpecified, sqrtPriceLimitX96, data)
}

func UniswapV3Slot0() ([]byte, error) {
	return UniswapV3PoolABI.Pack("slot0")
}

// DecodeSlot0 returns the price and tick fields of slot0.
func DecodeSlot0(out []byte) (sqrtPriceX96 *big.Int, tick int64, err error) {
	values, err := UniswapV3PoolABI.Unpack("slot0", out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to unpack slot0: %w", err)
	}
	if len(values) < 2 {
		return nil, 0, fmt.Errorf("%w: slot0 returned %d values", ErrUnexpectedOutput, len(values))
	}
	price, ok := values[0].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("%w: slot0 sqrtPriceX96 is %T", ErrUnexpectedOutput, values[0])
	}
	// int24 has no native Go width and is decoded as *big.Int
	t, ok := values[1].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("%w: slot0 tick is %T", ErrUnexpectedOutput, values[1])
	}
	return price, t.Int64(), nil
}

func UniswapV3Liquidity() ([]byte, error) {
	return UniswapV3PoolABI.Pack("liquidity")
}

func DecodeLiquidity(out []byte) (*big.Int, error) {
	return unpackBigInt(UniswapV3PoolABI, "liquidity", out)
}

// CurveABI returns the pool ABI for a coin index type. An empty type means
// int128.
func CurveABI(indexType string) (abi.ABI, error) {
	switch indexType {
	case "", curvestableswap.CoinIndexInt128:
		return CurveInt128ABI, nil
	case curvestableswap.CoinIndexUint256:
		return CurveUint256ABI, nil
	}
	return abi.ABI{}, fmt.Errorf("%w: unknown coin index type %q", ErrInvalidArgument, indexType)
}

// CurveExchange encodes exchange(i, j, dx, min_dy), or exchange_underlying
// when underlying is set. The pool pulls dx from the caller with
// transferFrom, so the caller must have approved it.
func CurveExchange(indexType string, i, j int, dx, minDy *big.Int, underlying bool) ([]byte, error) {
	pool, err := CurveABI(indexType)
	if err != nil {
		return nil, err
	}
	if i < 0 || j < 0 || i == j {
		return nil, fmt.Errorf("%w: coin indices %d, %d", ErrInvalidArgument, i, j)
	}
	if err := checkUint(dx); err != nil {
		return nil, err
	}
	if err := checkUint(minDy); err != nil {
		return nil, err
	}
	method := "exchange"
	if underlying {
		method = "exchange_underlying"
	}
	return pool.Pack(method, big.NewInt(int64(i)), big.NewInt(int64(j)), dx, minDy)
}

func CurveBalances(indexType string, i int) ([]byte, error) {
	pool, err := CurveABI(indexType)
	if err != nil {
		return nil, err
	}
	return pool.Pack("balances", big.NewInt(int64(i)))
}

func CurveA(indexType string) ([]byte, error) {
	pool, err := CurveABI(indexType)
	if err != nil {
		return nil, err
	}
	return pool.Pack("A")
}

func CurveVirtualPrice(indexType string) ([]byte, error) {
	pool, err := CurveABI(indexType)
	if err != nil {
		return nil, err
	}
	return pool.Pack("get_virtual_price")
}

// DecodeCurveUint decodes any of the single uint256 Curve view calls.
func DecodeCurveUint(indexType, method string, out []byte) (*big.Int, error) {
	pool, err := CurveABI(indexType)
	if err != nil {
		return nil, err
	}
	return unpackBigInt(pool, method, out)
}

func unpackBigInt(contract abi.ABI, method string, out []byte) (*big.Int, error) {
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedOutput, method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, values[0])
	}
	return v, nil
}

func checkUint(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: nil amount", ErrInvalidArgument)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidArgument, v)
	}
	return nil
}
