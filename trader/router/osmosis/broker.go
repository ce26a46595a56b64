package osmosis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
	sqsquery "github.com/Cogwheel-Validator/spectra-trade/trader/sqs_query"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "osmosis-router").Logger()
}

var hundred = decimal.NewFromInt(100)

// QuoteClient is the part of the SQS client the router needs
type QuoteClient interface {
	GetQuote(ctx context.Context, req sqsquery.QuoteRequest) (sqsquery.RouteTokenResponse, error)
}

// SqsRouter implements router.TradeRouter using the Osmosis SQS API
type SqsRouter struct {
	client  QuoteClient
	builder router.TxBuilder
}

var _ router.TradeRouter = (*SqsRouter)(nil)

// NewSqsRouter creates a router quoting through the given SQS client
func NewSqsRouter(client QuoteClient) *SqsRouter {
	return &SqsRouter{client: client, builder: TxBuilder{}}
}

// QuoteSell implements router.TradeRouter
func (r *SqsRouter) QuoteSell(
	ctx context.Context,
	assetIn, assetOut router.Asset,
	amountIn decimal.Decimal,
) (*router.Quote, error) {
	baseIn := assetIn.ToBase(amountIn)
	if !baseIn.IsPositive() {
		return nil, fmt.Errorf("%w: amount in %s is below one base unit of %s", router.ErrNoRoute, amountIn, assetIn.ID)
	}

	log.Debug().
		Str("tokenIn", assetIn.ID).
		Str("amount", baseIn.String()).
		Str("tokenOut", assetOut.ID).
		Msg("Querying SQS for sell quote")

	resp, err := r.client.GetQuote(ctx, sqsquery.QuoteRequest{
		TokenIn:       &sqsquery.TokenRequest{Denom: assetIn.ID, Amount: baseIn.String()},
		TokenOutDenom: assetOut.ID,
		SingleRoute:   true,
	})
	if err != nil {
		return nil, quoteError(err, assetIn, assetOut)
	}

	return r.convert(router.TradeTypeSell, assetIn, assetOut, resp)
}

// QuoteBuy implements router.TradeRouter
func (r *SqsRouter) QuoteBuy(
	ctx context.Context,
	assetIn, assetOut router.Asset,
	amountOut decimal.Decimal,
) (*router.Quote, error) {
	baseOut := assetOut.ToBase(amountOut)
	if !baseOut.IsPositive() {
		return nil, fmt.Errorf("%w: amount out %s is below one base unit of %s", router.ErrNoRoute, amountOut, assetOut.ID)
	}

	log.Debug().
		Str("tokenIn", assetIn.ID).
		Str("amount", baseOut.String()).
		Str("tokenOut", assetOut.ID).
		Msg("Querying SQS for buy quote")

	resp, err := r.client.GetQuote(ctx, sqsquery.QuoteRequest{
		TokenOut:     &sqsquery.TokenRequest{Denom: assetOut.ID, Amount: baseOut.String()},
		TokenInDenom: assetIn.ID,
		SingleRoute:  true,
	})
	if err != nil {
		return nil, quoteError(err, assetIn, assetOut)
	}

	return r.convert(router.TradeTypeBuy, assetIn, assetOut, resp)
}

func quoteError(err error, assetIn, assetOut router.Asset) error {
	log.Error().Err(err).
		Str("tokenIn", assetIn.ID).
		Str("tokenOut", assetOut.ID).
		Msg("SQS query failed")
	if errors.Is(err, sqsquery.ErrNoQuote) {
		return fmt.Errorf("%w: %s -> %s: %w", router.ErrNoRoute, assetIn.ID, assetOut.ID, err)
	}
	return fmt.Errorf("sqs quote %s -> %s: %w", assetIn.ID, assetOut.ID, err)
}

// convert maps the SQS response to a router quote
func (r *SqsRouter) convert(
	tradeType router.TradeType,
	assetIn, assetOut router.Asset,
	resp sqsquery.RouteTokenResponse,
) (*router.Quote, error) {
	if len(resp.Route) == 0 || len(resp.Route[0].Pools) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s: empty route", router.ErrNoRoute, assetIn.ID, assetOut.ID)
	}

	amountIn, err := decimal.NewFromString(resp.AmountIn.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in %q: %w", resp.AmountIn.Amount, err)
	}
	amountOut, err := decimal.NewFromString(resp.AmountOut.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount out %q: %w", resp.AmountOut.Amount, err)
	}
	if !amountIn.IsPositive() || !amountOut.IsPositive() {
		return nil, fmt.Errorf("%w: %s -> %s: zero amount quoted", router.ErrNoRoute, assetIn.ID, assetOut.ID)
	}

	priceImpact, err := parseOptionalDecimal(resp.PriceImpact)
	if err != nil {
		return nil, fmt.Errorf("invalid price impact %q: %w", resp.PriceImpact, err)
	}
	spotPrice, err := parseOptionalDecimal(resp.InBaseOutQuoteSpotPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid spot price %q: %w", resp.InBaseOutQuoteSpotPrice, err)
	}

	log.Debug().
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Str("priceImpact", priceImpact.String()).
		Msg("SQS query successful")

	return router.NewQuote(router.Quote{
		Type:      tradeType,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		// SQS spot price is a base unit ratio
		SpotPrice:      spotPrice.Shift(assetIn.Decimals - assetOut.Decimals),
		PriceImpactPct: priceImpact.Mul(hundred),
		Swaps:          buildSwaps(tradeType, assetIn, assetOut, resp.Route[0], amountIn, amountOut),
	}, r.builder), nil
}

// buildSwaps turns the pools of the best route into hops. SQS only reports the
// route totals, so the first hop carries the amount in and the last hop the amount out.
func buildSwaps(
	tradeType router.TradeType,
	assetIn, assetOut router.Asset,
	route sqsquery.Route,
	amountIn, amountOut decimal.Decimal,
) []router.Swap {
	swaps := make([]router.Swap, len(route.Pools))
	currentDenomIn := assetIn.ID

	for i, pool := range route.Pools {
		denomOut := pool.TokenOutDenom
		if tradeType == router.TradeTypeBuy || denomOut == "" {
			// exact out pools name their input denom, the output is the next pool's input
			denomOut = assetOut.ID
			if i+1 < len(route.Pools) && route.Pools[i+1].TokenInDenom != "" {
				denomOut = route.Pools[i+1].TokenInDenom
			}
		}
		swaps[i] = router.Swap{
			PoolID:   strconv.Itoa(pool.ID),
			AssetIn:  currentDenomIn,
			AssetOut: denomOut,
		}
		currentDenomIn = denomOut
	}

	swaps[0].AmountIn = amountIn
	swaps[len(swaps)-1].CalculatedOut = amountOut
	return swaps
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
