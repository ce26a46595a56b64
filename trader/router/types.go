package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeType tells which side of the quote was fixed by the caller
type TradeType string

const (
	TradeTypeSell TradeType = "sell" // exact amount in
	TradeTypeBuy  TradeType = "buy"  // exact amount out
)

// Asset is a tradable token as known by the router's asset registry
type Asset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// ToBase converts a human amount to base units, truncating dust below one base unit
func (a Asset) ToBase(human decimal.Decimal) decimal.Decimal {
	return human.Shift(a.Decimals).Truncate(0)
}

// ToHuman converts a base unit amount to a human amount
func (a Asset) ToHuman(base decimal.Decimal) decimal.Decimal {
	return base.Shift(-a.Decimals)
}

// Swap is a single hop of a quoted route.
// Amounts are in base units of the hop's own assets.
type Swap struct {
	PoolID        string          `json:"pool_id"`
	AssetIn       string          `json:"asset_in"`
	AssetOut      string          `json:"asset_out"`
	AmountIn      decimal.Decimal `json:"amount_in"`
	CalculatedOut decimal.Decimal `json:"calculated_out"`
	Errors        []string        `json:"errors,omitempty"`
}

// Quote is the router's answer for one asset pair and amount.
// AmountIn and AmountOut are in base units.
type Quote struct {
	Type      TradeType       `json:"type"`
	AssetIn   Asset           `json:"asset_in"`
	AssetOut  Asset           `json:"asset_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	// SpotPrice is the price of one asset in in terms of asset out, before the trade
	SpotPrice decimal.Decimal `json:"spot_price"`
	// PriceImpactPct is a signed percentage, negative means the trade moves
	// the price against the trader (e.g. -1.25 = -1.25%)
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`
	Swaps          []Swap          `json:"swaps"`

	builder TxBuilder
}

// NewQuote attaches the builder used by ToTx
func NewQuote(q Quote, builder TxBuilder) *Quote {
	q.builder = builder
	return &q
}

// ToTx builds the transaction of this quote bound to limit (base units)
func (q *Quote) ToTx(limit decimal.Decimal) (*Transaction, error) {
	if q.builder == nil {
		return nil, errors.New("quote has no transaction builder")
	}
	tx, err := q.builder.BuildTx(q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

// HasSwapErrors reports whether any hop of the route was flagged by the router
func (q *Quote) HasSwapErrors() bool {
	for _, swap := range q.Swaps {
		if len(swap.Errors) > 0 {
			return true
		}
	}
	return false
}

// Transaction is an unsigned transaction payload. The sizing engine passes it through untouched.
type Transaction struct {
	// TypeURL of the message, e.g. /osmosis.poolmanager.v1beta1.MsgSwapExactAmountIn
	TypeURL string          `json:"type_url"`
	Msg     json.RawMessage `json:"msg"`
}
