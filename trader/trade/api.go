// Package trade sizes and validates swap and TWAP orders against a trade router.
//
// The engine holds no mutable state. Every call reads a copy of the current
// settings, issues exactly one router query and builds its result from scratch,
// so concurrent calls are independent. Callers that need "latest wins" across
// overlapping calls have to track request order themselves.
package trade

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "trade").Logger()
}

// DefaultPoolLabel is the venue every TWAP route hop is tagged with
const DefaultPoolLabel = "osmosis-poolmanager"

// SettingsSource hands out settings snapshots
type SettingsSource interface {
	Snapshot() config.TradeSettings
}

// Engine quotes single trades and plans TWAP orders
type Engine struct {
	router    router.TradeRouter
	settings  SettingsSource
	poolLabel string
}

// Option configures an Engine
type Option func(*Engine)

// WithPoolLabel sets the label TWAP route hops are tagged with
func WithPoolLabel(label string) Option {
	return func(e *Engine) {
		e.poolLabel = label
	}
}

// NewEngine creates an engine quoting through r
func NewEngine(r router.TradeRouter, settings SettingsSource, opts ...Option) *Engine {
	e := &Engine{
		router:    r,
		settings:  settings,
		poolLabel: DefaultPoolLabel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetSell quotes selling an exact amount in and builds the transaction bound
// to the minimum amount out allowed by the trade slippage.
func (e *Engine) GetSell(
	ctx context.Context,
	assetIn, assetOut router.Asset,
	amountIn decimal.Decimal,
) (*TradeInfo, error) {
	slippage := e.settings.Snapshot().Trade.SlippagePct()

	bestSell, err := e.router.QuoteSell(ctx, assetIn, assetOut, amountIn)
	if err != nil {
		observeQuote(Sell, kindSingle, err)
		return nil, routeUnavailable(err)
	}

	minAmountOut := MinAmountOut(bestSell, slippage)
	transaction, err := bestSell.ToTx(minAmountOut.Amount)
	if err != nil {
		observeQuote(Sell, kindSingle, err)
		return nil, err
	}
	observeQuote(Sell, kindSingle, nil)

	return &TradeInfo{
		Quote:       bestSell,
		Transaction: transaction,
		Slippage:    minAmountOut.String(),
	}, nil
}

// GetBuy quotes buying an exact amount out and builds the transaction bound
// to the maximum amount in allowed by the trade slippage.
func (e *Engine) GetBuy(
	ctx context.Context,
	assetIn, assetOut router.Asset,
	amountOut decimal.Decimal,
) (*TradeInfo, error) {
	slippage := e.settings.Snapshot().Trade.SlippagePct()

	bestBuy, err := e.router.QuoteBuy(ctx, assetIn, assetOut, amountOut)
	if err != nil {
		observeQuote(Buy, kindSingle, err)
		return nil, routeUnavailable(err)
	}

	maxAmountIn := MaxAmountIn(bestBuy, slippage)
	transaction, err := bestBuy.ToTx(maxAmountIn.Amount)
	if err != nil {
		observeQuote(Buy, kindSingle, err)
		return nil, err
	}
	observeQuote(Buy, kindSingle, nil)

	return &TradeInfo{
		Quote:       bestBuy,
		Transaction: transaction,
		Slippage:    maxAmountIn.String(),
	}, nil
}

/*
GetSellPriceDifference compares the output of the last hop of a route with the
output the same amount would get at spot price.

Parameters:
- amountIn: amount in, in base units
- spotPrice: base units of asset out per base unit of asset in
- swaps: the route, must have at least one hop

Returns the difference in percent, rounded to two decimals:
(amountIn * spotPrice - calculatedOut) / calculatedOut * 100.
A route whose last hop yields nothing has a difference of zero.
*/
func GetSellPriceDifference(amountIn, spotPrice decimal.Decimal, swaps []router.Swap) (decimal.Decimal, error) {
	if len(swaps) == 0 {
		return decimal.Zero, ErrEmptySwaps
	}
	calculatedOut := swaps[len(swaps)-1].CalculatedOut
	swapAmount := amountIn.Mul(spotPrice)
	return diffToRef(swapAmount, calculatedOut), nil
}

// QuotePriceDifference is GetSellPriceDifference for a sell quote
func QuotePriceDifference(quote *router.Quote) (decimal.Decimal, error) {
	// quote spot price is in whole tokens, bring it back to base units
	baseSpot := quote.SpotPrice.Shift(quote.AssetOut.Decimals - quote.AssetIn.Decimals)
	return GetSellPriceDifference(quote.AmountIn, baseSpot, quote.Swaps)
}

func diffToRef(value, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return value.Sub(reference).Div(reference).Mul(hundred).Round(2)
}

// GetSellTwap plans a TWAP sell of p.Amount (whole tokens of asset in).
// Fees are taken out of the amount before it is split, the budget is the amount itself.
func (e *Engine) GetSellTwap(ctx context.Context, p TwapParams) (*TwapPlan, error) {
	if err := validateTwapParams(p); err != nil {
		return nil, err
	}
	twapSettings := e.settings.Snapshot().Twap

	tradesNo, err := OptimizedRepetitions(p.PriceDifference, p.BlockTime)
	if err != nil {
		return nil, err
	}
	tradeTime, err := ExecutionTime(tradesNo, p.BlockTime)
	if err != nil {
		return nil, err
	}
	twapTxFees := TwapTxFee(tradesNo, p.TxFee)
	amountInPerTrade := p.Amount.Sub(twapTxFees).Div(decimal.NewFromInt(tradesNo))
	if !amountInPerTrade.IsPositive() {
		return nil, fmt.Errorf("%w: fees %s eat the whole amount %s", ErrInvalidAmount, twapTxFees, p.Amount)
	}

	bestSell, err := e.router.QuoteSell(ctx, p.AssetIn, p.AssetOut, amountInPerTrade)
	if err != nil {
		observeQuote(Sell, kindTwap, err)
		return nil, routeUnavailable(err)
	}
	observeQuote(Sell, kindTwap, nil)

	minAmountOut := MinAmountOut(bestSell, twapSettings.SlippagePct())
	verdict := sellVerdict(tradesNo, amountInPerTrade, p.AmountMin, bestSell.PriceImpactPct)
	observeVerdict(Sell, verdict)

	log.Debug().
		Int64("reps", tradesNo).
		Dur("time", tradeTime).
		Str("perTrade", amountInPerTrade.String()).
		Str("verdict", string(verdict)).
		Msg("Sell TWAP planned")

	return &TwapPlan{
		Quote:          bestSell,
		Repetitions:    tradesNo,
		ExecutionTime:  tradeTime,
		Error:          verdict,
		Budget:         p.Amount,
		TotalFee:       twapTxFees,
		AmountPerTrade: amountInPerTrade,
		SlippageBound:  minAmountOut,
		Order: SellOrder{
			AssetIn:      p.AssetIn.ID,
			AssetOut:     p.AssetOut.ID,
			AmountIn:     bestSell.AmountIn,
			MinAmountOut: minAmountOut.Amount,
			Route:        annotateRoute(bestSell.Swaps, e.poolLabel),
		},
		MaxRetries: twapSettings.MaxRetries,
	}, nil
}

// GetBuyTwap plans a TWAP buy of p.Amount (whole tokens of asset out).
// The amount is split as is, fees are added on top of the budget.
func (e *Engine) GetBuyTwap(ctx context.Context, p TwapParams) (*TwapPlan, error) {
	if err := validateTwapParams(p); err != nil {
		return nil, err
	}
	twapSettings := e.settings.Snapshot().Twap

	tradesNo, err := OptimizedRepetitions(p.PriceDifference, p.BlockTime)
	if err != nil {
		return nil, err
	}
	tradeTime, err := ExecutionTime(tradesNo, p.BlockTime)
	if err != nil {
		return nil, err
	}
	twapTxFees := TwapTxFee(tradesNo, p.TxFee)
	amountOutPerTrade := p.Amount.Div(decimal.NewFromInt(tradesNo))

	bestBuy, err := e.router.QuoteBuy(ctx, p.AssetIn, p.AssetOut, amountOutPerTrade)
	if err != nil {
		observeQuote(Buy, kindTwap, err)
		return nil, routeUnavailable(err)
	}
	observeQuote(Buy, kindTwap, nil)

	maxAmountIn := MaxAmountIn(bestBuy, twapSettings.SlippagePct())
	maxAmountInPerTrade := maxAmountIn.Human()
	maxBudget := maxAmountInPerTrade.Mul(decimal.NewFromInt(tradesNo)).Add(twapTxFees)
	verdict := buyVerdict(tradesNo, maxAmountInPerTrade, p.AmountMin, p.PriceDifference)
	observeVerdict(Buy, verdict)

	log.Debug().
		Int64("reps", tradesNo).
		Dur("time", tradeTime).
		Str("perTrade", amountOutPerTrade.String()).
		Str("budget", maxBudget.String()).
		Str("verdict", string(verdict)).
		Msg("Buy TWAP planned")

	return &TwapPlan{
		Quote:          bestBuy,
		Repetitions:    tradesNo,
		ExecutionTime:  tradeTime,
		Error:          verdict,
		Budget:         maxBudget,
		TotalFee:       twapTxFees,
		AmountPerTrade: amountOutPerTrade,
		SlippageBound:  maxAmountIn,
		Order: BuyOrder{
			AssetIn:     p.AssetIn.ID,
			AssetOut:    p.AssetOut.ID,
			AmountOut:   bestBuy.AmountOut,
			MaxAmountIn: maxAmountIn.Amount,
			Route:       annotateRoute(bestBuy.Swaps, e.poolLabel),
		},
		MaxRetries: twapSettings.MaxRetries,
	}, nil
}
