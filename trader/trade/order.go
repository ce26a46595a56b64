package trade

import "github.com/shopspring/decimal"

// RouteHop is one hop of an order route
type RouteHop struct {
	Pool     string `json:"pool"`
	PoolID   string `json:"pool_id"`
	AssetIn  string `json:"asset_in"`
	AssetOut string `json:"asset_out"`
}

// Order is a submission ready TWAP order, either a SellOrder or a BuyOrder.
// The set of implementations is closed, use MatchOrder to handle both.
type Order interface {
	Direction() Direction
	isOrder()
}

// SellOrder sells a fixed amount in per repetition. Amounts are in base units.
type SellOrder struct {
	AssetIn      string          `json:"asset_in"`
	AssetOut     string          `json:"asset_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	Route        []RouteHop      `json:"route"`
}

// BuyOrder buys a fixed amount out per repetition. Amounts are in base units.
type BuyOrder struct {
	AssetIn     string          `json:"asset_in"`
	AssetOut    string          `json:"asset_out"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	MaxAmountIn decimal.Decimal `json:"max_amount_in"`
	Route       []RouteHop      `json:"route"`
}

func (SellOrder) Direction() Direction { return Sell }
func (BuyOrder) Direction() Direction  { return Buy }

func (SellOrder) isOrder() {}
func (BuyOrder) isOrder()  {}

// MatchOrder calls sell or buy depending on the order variant
func MatchOrder[T any](order Order, sell func(SellOrder) T, buy func(BuyOrder) T) T {
	switch o := order.(type) {
	case SellOrder:
		return sell(o)
	case BuyOrder:
		return buy(o)
	default:
		// unreachable, Order is sealed
		panic("trade: unknown order variant")
	}
}
