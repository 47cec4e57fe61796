package calldata

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{
		"constant": false,
		"inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "totalSupply",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	}
]`

const uniswapV2PairABIJSON = `[
	{
		"inputs": [
			{"name": "amount0Out", "type": "uint256"},
			{"name": "amount1Out", "type": "uint256"},
			{"name": "to", "type": "address"},
			{"name": "data", "type": "bytes"}
		],
		"name": "swap",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"name": "reserve0", "type": "uint112"},
			{"name": "reserve1", "type": "uint112"},
			{"name": "blockTimestampLast", "type": "uint32"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const uniswapV3PoolABIJSON = `[
	{
		"inputs": [
			{"name": "recipient", "type": "address"},
			{"name": "zeroForOne", "type": "bool"},
			{"name": "amountSpecified", "type": "int256"},
			{"name": "sqrtPriceLimitX96", "type": "uint160"},
			{"name": "data", "type": "bytes"}
		],
		"name": "swap",
		"outputs": [
			{"name": "amount0", "type": "int256"},
			{"name": "amount1", "type": "int256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"name": "sqrtPriceX96", "type": "uint160"},
			{"name": "tick", "type": "int24"},
			{"name": "observationIndex", "type": "uint16"},
			{"name": "observationCardinality", "type": "uint16"},
			{"name": "observationCardinalityNext", "type": "uint16"},
			{"name": "feeProtocol", "type": "uint8"},
			{"name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "liquidity",
		"outputs": [{"name": "", "type": "uint128"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// curveABIJSON is parameterised on the coin index type, "int128" for the
// original templates and "uint256" for later ones.
const curveABIJSON = `[
	{
		"inputs": [
			{"name": "i", "type": "%[1]s"},
			{"name": "j", "type": "%[1]s"},
			{"name": "dx", "type": "uint256"},
			{"name": "min_dy", "type": "uint256"}
		],
		"name": "exchange",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "i", "type": "%[1]s"},
			{"name": "j", "type": "%[1]s"},
			{"name": "dx", "type": "uint256"},
			{"name": "min_dy", "type": "uint256"}
		],
		"name": "exchange_underlying",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "i", "type": "%[1]s"}],
		"name": "balances",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "A",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "get_virtual_price",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	ERC20ABI         abi.ABI
	UniswapV2PairABI abi.ABI
	UniswapV3PoolABI abi.ABI
	CurveInt128ABI   abi.ABI
	CurveUint256ABI  abi.ABI
)

func init() {
	ERC20ABI = mustParse(erc20ABIJSON)
	UniswapV2PairABI = mustParse(uniswapV2PairABIJSON)
	UniswapV3PoolABI = mustParse(uniswapV3PoolABIJSON)
	CurveInt128ABI = mustParse(fmt.Sprintf(curveABIJSON, "int128"))
	CurveUint256ABI = mustParse(fmt.Sprintf(curveABIJSON, "uint256"))
}

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
