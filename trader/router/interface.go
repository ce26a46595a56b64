// Package router defines the trade router contract the sizing engine quotes against.
// Concrete routers (Osmosis SQS for now) live in sub packages.
package router

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoRoute is returned when the router cannot price the requested pair or amount
var ErrNoRoute = errors.New("no route")

// TradeRouter returns the best quote for an asset pair.
// Amounts are human readable, e.g. "1.5" OSMO and not "1500000" uosmo.
type TradeRouter interface {
	// QuoteSell quotes an exact amount in
	QuoteSell(ctx context.Context, assetIn, assetOut Asset, amountIn decimal.Decimal) (*Quote, error)
	// QuoteBuy quotes an exact amount out
	QuoteBuy(ctx context.Context, assetIn, assetOut Asset, amountOut decimal.Decimal) (*Quote, error)
}

// TxBuilder materializes the transaction of a quote bound to a slippage limit.
// For a sell the limit is the minimum amount out, for a buy the maximum amount in.
type TxBuilder interface {
	BuildTx(quote *Quote, limit decimal.Decimal) (*Transaction, error)
}

// TxBuilderFunc adapts a function to TxBuilder
type TxBuilderFunc func(quote *Quote, limit decimal.Decimal) (*Transaction, error)

// BuildTx implements TxBuilder
func (f TxBuilderFunc) BuildTx(quote *Quote, limit decimal.Decimal) (*Transaction, error) {
	return f(quote, limit)
}
