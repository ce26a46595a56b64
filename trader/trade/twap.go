package trade

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
)

const (
	// BlockPeriod is the number of blocks between two TWAP repetitions
	BlockPeriod = 5
	// MaxDuration caps the execution time of a TWAP order
	MaxDuration = 3 * time.Hour
	// TxMultiplier scales the plain transfer fee to the weight of a TWAP trade
	TxMultiplier = 3
	// Retries is the number of retries per repetition assumed by the fee estimate
	Retries = 1
)

var (
	// MaxPriceImpactPct is the most negative price impact a sell repetition may have
	MaxPriceImpactPct = decimal.NewFromInt(-5)
	// NoRouteSentinel is the price difference a buy gets when no route bounds its impact.
	// TODO: replace the exact match with a threshold once product defines one
	NoRouteSentinel = decimal.NewFromInt(100)

	ten = decimal.NewFromInt(10)
)

// MaxBlockTime is the longest block time whose repetition interval still fits in a time.Duration
const MaxBlockTime = time.Duration(math.MaxInt64 / BlockPeriod)

func checkBlockTime(blockTime time.Duration) error {
	if blockTime <= 0 {
		return fmt.Errorf("%w: %s is not positive", ErrInvalidBlockTime, blockTime)
	}
	if blockTime > MaxBlockTime {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidBlockTime, blockTime, MaxBlockTime)
	}
	return nil
}

// OptimizedRepetitions derives the number of repetitions from the price difference:
// round(priceDifference * 10), at least 1. If that would run longer than MaxDuration
// the count is lowered to what fits in MaxDuration.
func OptimizedRepetitions(priceDifference decimal.Decimal, blockTime time.Duration) (int64, error) {
	if err := checkBlockTime(blockTime); err != nil {
		return 0, err
	}

	reps := priceDifference.Mul(ten).Round(0)
	if reps.LessThan(decimal.NewFromInt(1)) {
		reps = decimal.NewFromInt(1)
	}

	interval := decimal.NewFromInt(int64(blockTime)).Mul(decimal.NewFromInt(BlockPeriod))
	maxDuration := decimal.NewFromInt(int64(MaxDuration))

	if reps.Mul(interval).GreaterThan(maxDuration) {
		maxReps := maxDuration.Div(interval).Round(0).IntPart()
		if maxReps < 1 {
			maxReps = 1
		}
		return maxReps, nil
	}
	return reps.IntPart(), nil
}

// ExecutionTime is the time it takes to run the given number of repetitions.
// It fails instead of wrapping around when the result does not fit in a time.Duration.
func ExecutionTime(reps int64, blockTime time.Duration) (time.Duration, error) {
	if err := checkBlockTime(blockTime); err != nil {
		return 0, err
	}
	if reps < 1 {
		return 0, fmt.Errorf("repetitions must be at least 1, got %d", reps)
	}
	if blockTime > MaxBlockTime/time.Duration(reps) {
		return 0, fmt.Errorf("%w: %d repetitions of %s overflow", ErrInvalidBlockTime, reps, blockTime)
	}
	return time.Duration(reps) * BlockPeriod * blockTime, nil
}

// TwapTxFee is the worst case fee of all repetitions, counting one retry each
func TwapTxFee(reps int64, txFee decimal.Decimal) decimal.Decimal {
	return txFee.
		Mul(decimal.NewFromInt(TxMultiplier)).
		Mul(decimal.NewFromInt(Retries + 1)).
		Mul(decimal.NewFromInt(reps))
}

// annotateRoute tags every hop with the venue label
func annotateRoute(swaps []router.Swap, label string) []RouteHop {
	route := make([]RouteHop, len(swaps))
	for i, swap := range swaps {
		route[i] = RouteHop{
			Pool:     label,
			PoolID:   swap.PoolID,
			AssetIn:  swap.AssetIn,
			AssetOut: swap.AssetOut,
		}
	}
	return route
}

// sellVerdict classifies a sell plan. A plan that collapses into one trade or
// trades less than the minimum per repetition is too small, whatever its impact.
func sellVerdict(reps int64, amountInPerTrade, amountMin, priceImpactPct decimal.Decimal) TwapError {
	switch {
	case reps == 1 || amountInPerTrade.LessThan(amountMin):
		return TwapOrderTooSmall
	case priceImpactPct.LessThan(MaxPriceImpactPct):
		return TwapOrderImpactTooBig
	default:
		return TwapOK
	}
}

func buyVerdict(reps int64, maxAmountInPerTrade, amountMin, priceDifference decimal.Decimal) TwapError {
	switch {
	case reps == 1 || maxAmountInPerTrade.LessThan(amountMin):
		return TwapOrderTooSmall
	case priceDifference.Equal(NoRouteSentinel):
		return TwapOrderTooBig
	default:
		return TwapOK
	}
}

func validateTwapParams(p TwapParams) error {
	if err := checkBlockTime(p.BlockTime); err != nil {
		return err
	}
	if !p.Amount.IsPositive() {
		return invalidAmount("amount", p.Amount)
	}
	if p.AmountMin.IsNegative() {
		return invalidAmount("minimum amount", p.AmountMin)
	}
	if p.TxFee.IsNegative() {
		return invalidAmount("tx fee", p.TxFee)
	}
	return nil
}
