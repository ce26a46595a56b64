package osmosis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
)

// TxBuilder builds poolmanager swap messages out of quotes
type TxBuilder struct{}

var _ router.TxBuilder = TxBuilder{}

// BuildTx implements router.TxBuilder. The limit is in base units and is the
// minimum amount out for a sell or the maximum amount in for a buy.
func (TxBuilder) BuildTx(quote *router.Quote, limit decimal.Decimal) (*router.Transaction, error) {
	if len(quote.Swaps) == 0 {
		return nil, errors.New("quote has no swaps")
	}
	if limit.IsNegative() {
		return nil, fmt.Errorf("limit must not be negative, got %s", limit)
	}

	var (
		typeURL string
		msg     any
	)
	switch quote.Type {
	case router.TradeTypeSell:
		routes := make([]SwapAmountInRoute, len(quote.Swaps))
		for i, swap := range quote.Swaps {
			routes[i] = SwapAmountInRoute{PoolID: swap.PoolID, TokenOutDenom: swap.AssetOut}
		}
		typeURL = msgSwapExactAmountIn
		msg = MsgSwapExactAmountIn{
			Routes:            routes,
			TokenIn:           Coin{Denom: quote.AssetIn.ID, Amount: quote.AmountIn.String()},
			TokenOutMinAmount: limit.Truncate(0).String(),
		}
	case router.TradeTypeBuy:
		routes := make([]SwapAmountOutRoute, len(quote.Swaps))
		for i, swap := range quote.Swaps {
			routes[i] = SwapAmountOutRoute{PoolID: swap.PoolID, TokenInDenom: swap.AssetIn}
		}
		typeURL = msgSwapExactAmountOut
		msg = MsgSwapExactAmountOut{
			Routes:           routes,
			TokenInMaxAmount: limit.Ceil().String(),
			TokenOut:         Coin{Denom: quote.AssetOut.ID, Amount: quote.AmountOut.String()},
		}
	default:
		return nil, fmt.Errorf("unknown trade type %q", quote.Type)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", typeURL, err)
	}
	return &router.Transaction{TypeURL: typeURL, Msg: raw}, nil
}
