// Package tokenregistry describes the ERC-20 tokens a deployment knows about
// and formats raw amounts of them for people.
package tokenregistry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed for tokens the registry does not know.
const DefaultDecimals = 18

// Token is the static description of one token.
type Token struct {
	Address  common.Address `json:"address" yaml:"address"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

// Registry provides lookups by address. It is immutable once built.
type Registry struct {
	byAddress map[common.Address]Token
	all       []Token
}

// New indexes tokens by address. A later entry for the same address wins.
func New(tokens []Token) *Registry {
	byAddress := make(map[common.Address]Token, len(tokens))
	for _, t := range tokens {
		byAddress[t.Address] = t
	}
	return &Registry{
		byAddress: byAddress,
		all:       append([]Token(nil), tokens...),
	}
}

func (r *Registry) GetByAddress(address common.Address) (Token, bool) {
	t, ok := r.byAddress[address]
	return t, ok
}

// All returns a copy of the registered tokens.
func (r *Registry) All() []Token {
	return append([]Token(nil), r.all...)
}

// Symbol returns the token's symbol, or its checksummed address when unknown.
func (r *Registry) Symbol(address common.Address) string {
	if t, ok := r.byAddress[address]; ok && t.Symbol != "" {
		return t.Symbol
	}
	return address.Hex()
}

// Decimal converts a raw amount into token units.
func (r *Registry) Decimal(address common.Address, amount *big.Int) decimal.Decimal {
	decimals := uint8(DefaultDecimals)
	if t, ok := r.byAddress[address]; ok {
		decimals = t.Decimals
	}
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// Format renders amount in token units followed by the symbol.
func (r *Registry) Format(address common.Address, amount *big.Int) string {
	return r.Decimal(address, amount).String() + " " + r.Symbol(address)
}
