package trade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
)

// Direction of a trade
type Direction string

const (
	Sell Direction = "sell"
	Buy  Direction = "buy"
)

// Amount is a base unit quantity together with its precision
type Amount struct {
	Amount   decimal.Decimal `json:"amount"`
	Decimals int32           `json:"decimals"`
}

// Human returns the amount in whole tokens
func (a Amount) Human() decimal.Decimal {
	return a.Amount.Shift(-a.Decimals)
}

// String formats the amount in whole tokens, e.g. "1.5"
func (a Amount) String() string {
	return a.Human().String()
}

// TradeInfo is the result of a single shot quote
type TradeInfo struct {
	Quote       *router.Quote
	Transaction *router.Transaction
	// Slippage is the human readable slippage bound: minimum amount out
	// for a sell, maximum amount in for a buy
	Slippage string
}

// TwapError is the advisory verdict of a TWAP plan. The empty value means the plan is valid.
type TwapError string

const (
	TwapOK                TwapError = ""
	TwapOrderTooSmall     TwapError = "OrderTooSmall"
	TwapOrderTooBig       TwapError = "OrderTooBig"
	TwapOrderImpactTooBig TwapError = "OrderImpactTooBig"
)

// TwapParams are the inputs of a TWAP plan. Amount is the total amount in
// for a sell and the total amount out for a buy, in whole tokens.
type TwapParams struct {
	AssetIn  router.Asset
	AssetOut router.Asset
	Amount   decimal.Decimal
	// AmountMin is the smallest amount in one repetition may trade
	AmountMin decimal.Decimal
	// TxFee is the flat fee of one transaction, in asset in
	TxFee decimal.Decimal
	// PriceDifference is the price difference signal in percent, see GetSellPriceDifference
	PriceDifference decimal.Decimal
	BlockTime       time.Duration
}

// TwapPlan describes how a TWAP order would be executed
type TwapPlan struct {
	// Quote of a single repetition, every repetition is assumed to trade the same
	Quote       *router.Quote
	Repetitions int64
	// ExecutionTime is the estimated time to complete all repetitions
	ExecutionTime time.Duration
	Error         TwapError
	// Budget is the total amount in committed to the order, in whole tokens
	Budget decimal.Decimal
	// TotalFee is the fee overhead over all repetitions including retries
	TotalFee decimal.Decimal
	// AmountPerTrade is the amount in (sell) or amount out (buy) of one repetition
	AmountPerTrade decimal.Decimal
	// SlippageBound is the per trade minimum amount out (sell) or maximum amount in (buy)
	SlippageBound Amount
	Order         Order
	MaxRetries    int
}

// ExecutionTimeMs returns the execution time in milliseconds
func (p *TwapPlan) ExecutionTimeMs() int64 {
	return p.ExecutionTime.Milliseconds()
}

// Direction returns the direction of the plan's order
func (p *TwapPlan) Direction() Direction {
	return p.Order.Direction()
}
