// Package chains holds the interfaces chain clients share.
package chains

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// HeadSubscriber streams new block headers. *ethclient.Client satisfies it
// over a websocket or IPC connection.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Backend is everything a chain client needs from a node.
type Backend interface {
	Caller
	HeadSubscriber
}

// BlockSummary describes the block a refresh was made at.
type BlockSummary struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"`
	// Updated is the number of pools whose state changed at this block.
	Updated int `json:"updated"`
}
