package arbitrage

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-arbitrage-go/pools"
	"github.com/ethereum/go-ethereum/common"
)

// curvePosition is the only leg index a Curve pool may occupy.
const curvePosition = 1

// SwapVector is the direction of one leg. ZeroForOne applies to two-token
// pools; CoinIn, CoinOut and Underlying apply to Curve pools.
type SwapVector struct {
	Kind       pools.Kind
	TokenIn    common.Address
	TokenOut   common.Address
	ZeroForOne bool
	CoinIn     int
	CoinOut    int
	Underlying bool
}

// deriveVectors walks the pools once and fixes the token flow of every leg.
func deriveVectors(ps []pools.Pool, inputToken common.Address) ([]SwapVector, error) {
	if len(ps) < 2 {
		return nil, fmt.Errorf("%w: a cycle needs at least 2 pools, got %d", ErrConfig, len(ps))
	}

	vectors := make([]SwapVector, 0, len(ps))
	running := inputToken
	for i, p := range ps {
		var (
			v   SwapVector
			err error
		)
		switch pool := p.(type) {
		case *pools.UniswapV2:
			v, err = twoTokenVector(pools.KindUniswapV2, pool.Token0(), pool.Token1(), running)
		case *pools.UniswapV3:
			v, err = twoTokenVector(pools.KindUniswapV3, pool.Token0(), pool.Token1(), running)
		case *pools.CurveStableswap:
			v, err = curveVector(pool, i, ps, running)
		default:
			err = fmt.Errorf("%w: %T", ErrUnsupportedPool, p)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: pool %d (%s): %w", ErrConfig, i, p.Address().Hex(), err)
		}
		vectors = append(vectors, v)
		running = v.TokenOut
	}

	if running != inputToken {
		return nil, fmt.Errorf("%w: path is not closed, ends in %s instead of %s", ErrConfig, running.Hex(), inputToken.Hex())
	}
	return vectors, nil
}

func twoTokenVector(kind pools.Kind, token0, token1, tokenIn common.Address) (SwapVector, error) {
	switch tokenIn {
	case token0:
		return SwapVector{Kind: kind, TokenIn: token0, TokenOut: token1, ZeroForOne: true}, nil
	case token1:
		return SwapVector{Kind: kind, TokenIn: token1, TokenOut: token0, ZeroForOne: false}, nil
	}
	return SwapVector{}, fmt.Errorf("input token %s could not be identified", tokenIn.Hex())
}

// curveVector picks the forward token of a Curve leg as the one coin it
// shares with the next pool.
func curveVector(pool *pools.CurveStableswap, i int, ps []pools.Pool, tokenIn common.Address) (SwapVector, error) {
	if i != curvePosition {
		return SwapVector{}, fmt.Errorf("curve pools are only supported at position %d", curvePosition)
	}
	if i+1 >= len(ps) {
		return SwapVector{}, fmt.Errorf("curve pool has no next pool to continue into")
	}

	coins := mapset.NewThreadUnsafeSet(pool.Tokens()...)
	if !coins.Contains(tokenIn) {
		return SwapVector{}, fmt.Errorf("input token %s could not be identified", tokenIn.Hex())
	}
	shared := coins.Intersect(mapset.NewThreadUnsafeSet(ps[i+1].Tokens()...))
	if shared.Cardinality() != 1 {
		return SwapVector{}, fmt.Errorf("expected exactly one token shared with the next pool, found %d", shared.Cardinality())
	}
	tokenOut, _ := shared.Pop()
	if tokenOut == tokenIn {
		return SwapVector{}, fmt.Errorf("token %s enters and leaves the pool", tokenIn.Hex())
	}

	coinIn, coinOut, underlying, err := pool.Route(tokenIn, tokenOut, nil)
	if err != nil {
		return SwapVector{}, err
	}
	return SwapVector{
		Kind:       pools.KindCurveStableswap,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		CoinIn:     coinIn,
		CoinOut:    coinOut,
		Underlying: underlying,
	}, nil
}
