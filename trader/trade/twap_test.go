package trade_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
	"github.com/Cogwheel-Validator/spectra-trade/trader/trade"
)

func TestOptimizedRepetitions(t *testing.T) {
	tests := []struct {
		name            string
		priceDifference string
		blockTime       time.Duration
		want            int64
	}{
		{"scaled by ten", "0.3", 6 * time.Second, 3},
		{"rounds half up", "0.25", 6 * time.Second, 3},
		{"zero difference floors at one", "0", 6 * time.Second, 1},
		{"tiny difference floors at one", "0.04", 6 * time.Second, 1},
		{"negative difference floors at one", "-2", 6 * time.Second, 1},
		{"capped by max duration", "100", 6 * time.Second, 360},
		{"capped with long blocks", "10", time.Minute, 36},
		{"cap never goes below one", "0.3", time.Hour, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := trade.OptimizedRepetitions(decimal.RequireFromString(tt.priceDifference), tt.blockTime)
			assert.NoError(t, err)
			assert.Equal(t, got, tt.want)
			execTime, err := trade.ExecutionTime(got, tt.blockTime)
			assert.NoError(t, err)
			assert.True(t, execTime <= trade.MaxDuration || got == 1)
		})
	}
}

func TestOptimizedRepetitions_InvalidBlockTime(t *testing.T) {
	_, err := trade.OptimizedRepetitions(decimal.NewFromInt(1), 0)
	assert.True(t, errors.Is(err, trade.ErrInvalidBlockTime))

	_, err = trade.OptimizedRepetitions(decimal.NewFromInt(1), -time.Second)
	assert.True(t, errors.Is(err, trade.ErrInvalidBlockTime))

	_, err = trade.OptimizedRepetitions(decimal.NewFromInt(1), trade.MaxBlockTime+1)
	assert.True(t, errors.Is(err, trade.ErrInvalidBlockTime))
}

func TestExecutionTime(t *testing.T) {
	got, err := trade.ExecutionTime(3, 6*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, got, 90*time.Second)

	got, err = trade.ExecutionTime(1, 6*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, got.Milliseconds(), int64(30000))

	got, err = trade.ExecutionTime(1, trade.MaxBlockTime)
	assert.NoError(t, err)
	assert.True(t, got > 0)
}

func TestExecutionTime_Overflow(t *testing.T) {
	tests := []struct {
		name      string
		reps      int64
		blockTime time.Duration
	}{
		{"huge block time", 1, 2e9 * time.Second},
		{"just past the limit", 1, trade.MaxBlockTime + 1},
		{"repetitions push it over", 2, trade.MaxBlockTime/2 + 1},
		{"zero block time", 3, 0},
		{"zero repetitions", 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := trade.ExecutionTime(tt.reps, tt.blockTime)
			assert.Error(t, err)
			assert.Equal(t, got, time.Duration(0))
		})
	}
}

func TestTwapTxFee(t *testing.T) {
	// fee * multiplier * (retries + 1) * reps
	fee := trade.TwapTxFee(3, decimal.RequireFromString("0.1"))
	assert.Equal(t, fee.String(), "1.8")

	assert.True(t, trade.TwapTxFee(10, decimal.Zero).IsZero())
}

func TestSlippageBounds(t *testing.T) {
	quote := &router.Quote{
		AssetIn:   osmo,
		AssetOut:  atom,
		AmountIn:  decimal.NewFromInt(10000000),
		AmountOut: decimal.NewFromInt(1985001),
	}

	minOut := trade.MinAmountOut(quote, decimal.NewFromInt(1))
	// 1985001 * 0.99 = 1965150.99 rounded down
	assert.Equal(t, minOut.Amount.String(), "1965150")
	assert.Equal(t, minOut.Decimals, int32(6))
	assert.Equal(t, minOut.String(), "1.96515")

	maxIn := trade.MaxAmountIn(quote, decimal.RequireFromString("0.5"))
	assert.Equal(t, maxIn.Amount.String(), "10050000")
	assert.Equal(t, maxIn.String(), "10.05")

	// zero slippage keeps the quote as is
	assert.Equal(t, trade.MinAmountOut(quote, decimal.Zero).Amount.String(), "1985001")
	assert.Equal(t, trade.MaxAmountIn(quote, decimal.Zero).Amount.String(), "10000000")
}

func TestMaxAmountIn_RoundsUp(t *testing.T) {
	quote := &router.Quote{AssetIn: osmo, AmountIn: decimal.NewFromInt(333)}
	// 333 * 1.03 = 342.99
	assert.Equal(t, trade.MaxAmountIn(quote, decimal.NewFromInt(3)).Amount.String(), "343")
}

func TestMatchOrder(t *testing.T) {
	describe := func(o trade.Order) string {
		return trade.MatchOrder(o,
			func(s trade.SellOrder) string { return "sell " + s.AmountIn.String() },
			func(b trade.BuyOrder) string { return "buy " + b.AmountOut.String() },
		)
	}

	assert.Equal(t, describe(trade.SellOrder{AmountIn: decimal.NewFromInt(5)}), "sell 5")
	assert.Equal(t, describe(trade.BuyOrder{AmountOut: decimal.NewFromInt(7)}), "buy 7")
	assert.Equal(t, trade.SellOrder{}.Direction(), trade.Sell)
	assert.Equal(t, trade.BuyOrder{}.Direction(), trade.Buy)
}

func TestGetSellPriceDifference(t *testing.T) {
	swaps := []router.Swap{
		{PoolID: "1", CalculatedOut: decimal.NewFromInt(50)},
		{PoolID: "2", CalculatedOut: decimal.NewFromInt(190)},
	}

	// (100 * 2 - 190) / 190 * 100
	diff, err := trade.GetSellPriceDifference(decimal.NewFromInt(100), decimal.NewFromInt(2), swaps)
	assert.NoError(t, err)
	assert.Equal(t, diff.String(), "5.26")

	t.Run("zero reference", func(t *testing.T) {
		diff, err := trade.GetSellPriceDifference(decimal.NewFromInt(100), decimal.NewFromInt(2),
			[]router.Swap{{CalculatedOut: decimal.Zero}})
		assert.NoError(t, err)
		assert.True(t, diff.IsZero())
	})

	t.Run("empty route", func(t *testing.T) {
		_, err := trade.GetSellPriceDifference(decimal.NewFromInt(100), decimal.NewFromInt(2), nil)
		assert.True(t, errors.Is(err, trade.ErrEmptySwaps))
	})
}

func TestQuotePriceDifference(t *testing.T) {
	quote := &router.Quote{
		AssetIn:   osmo,
		AssetOut:  atom,
		AmountIn:  decimal.NewFromInt(10000000),
		AmountOut: decimal.NewFromInt(1985000),
		SpotPrice: decimal.RequireFromString("0.2"),
		Swaps:     []router.Swap{{CalculatedOut: decimal.NewFromInt(1985000)}},
	}

	// (2000000 - 1985000) / 1985000 * 100
	diff, err := trade.QuotePriceDifference(quote)
	assert.NoError(t, err)
	assert.Equal(t, diff.String(), "0.76")
}
