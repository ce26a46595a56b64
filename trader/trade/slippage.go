package trade

import (
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
)

var hundred = decimal.NewFromInt(100)

// MinAmountOut is the sell slippage floor: amountOut * (1 - slippagePct/100),
// rounded down to whole base units of the asset out.
func MinAmountOut(quote *router.Quote, slippagePct decimal.Decimal) Amount {
	minOut := quote.AmountOut.Mul(hundred.Sub(slippagePct)).Shift(-2).Floor()
	return Amount{Amount: minOut, Decimals: quote.AssetOut.Decimals}
}

// MaxAmountIn is the buy slippage ceiling: amountIn * (1 + slippagePct/100),
// rounded up to whole base units of the asset in.
func MaxAmountIn(quote *router.Quote, slippagePct decimal.Decimal) Amount {
	maxIn := quote.AmountIn.Mul(hundred.Add(slippagePct)).Shift(-2).Ceil()
	return Amount{Amount: maxIn, Decimals: quote.AssetIn.Decimals}
}
