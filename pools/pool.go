// Package pools holds live handles to on-chain liquidity pools. A handle owns
// the latest snapshot of its pool, prices swaps against it (or against a
// caller-supplied override) and notifies subscribers when it changes.
package pools

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAmount is returned when a quote is requested for a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrIdentityMismatch is returned when a snapshot does not describe the pool it is applied to.
	ErrIdentityMismatch = errors.New("snapshot does not match pool identity")
	ErrInvalidPool      = errors.New("invalid pool")
)

// Kind identifies the pricing model of a pool.
type Kind uint8

const (
	KindUniswapV2 Kind = iota + 1
	KindUniswapV3
	KindCurveStableswap
)

func (k Kind) String() string {
	switch k {
	case KindUniswapV2:
		return "uniswap_v2"
	case KindUniswapV3:
		return "uniswap_v3"
	case KindCurveStableswap:
		return "curve_stableswap"
	default:
		return "unknown"
	}
}

// Subscriber is notified after a pool's state has been replaced.
type Subscriber interface {
	OnStateChanged(publisher Pool)
}

// Pool is implemented only by the handles in this package: *UniswapV2,
// *UniswapV3 and *CurveStableswap. Callers dispatch on the concrete type.
type Pool interface {
	Address() common.Address
	Tokens() []common.Address
	Kind() Kind
	Subscribe(s Subscriber)
	Unsubscribe(s Subscriber)

	sealed()
}

// publisher keeps the subscriber list shared by every pool handle.
type publisher struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

func (p *publisher) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.subscribers {
		if existing == s {
			return
		}
	}
	p.subscribers = append(p.subscribers, s)
}

func (p *publisher) Unsubscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.subscribers {
		if existing == s {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

// notify calls every subscriber outside the lock so a subscriber may
// unsubscribe or read the pool from its callback.
func (p *publisher) notify(pool Pool) {
	p.mu.RLock()
	subs := make([]Subscriber, len(p.subscribers))
	copy(subs, p.subscribers)
	p.mu.RUnlock()

	for _, s := range subs {
		s.OnStateChanged(pool)
	}
}

func (p *publisher) subscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
