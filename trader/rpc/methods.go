package rpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Cogwheel-Validator/spectra-trade/trader/account"
	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
	"github.com/Cogwheel-Validator/spectra-trade/trader/models"
	"github.com/Cogwheel-Validator/spectra-trade/trader/notify"
	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
	"github.com/Cogwheel-Validator/spectra-trade/trader/trade"
)

// SettingsStore is the settings store the service reads and updates
type SettingsStore interface {
	Snapshot() config.TradeSettings
	Update(fn func(config.TradeSettings) config.TradeSettings) (config.TradeSettings, error)
}

// Notifier submits transactions and tracks their notifications
type Notifier interface {
	Submit(txBytes []byte, messages notify.Messages) (string, error)
	Dismiss(id string) error
	SubscribeChan(buffer int) (<-chan notify.Notification, func())
}

// PriceSource prices a token in USD
type PriceSource interface {
	GetTokenPrice(ctx context.Context, denom string) (decimal.Decimal, error)
}

// concurrent price lookups of one ListAssets call
const priceLookups = 8

// TradeServer implements the TradeService procedures
type TradeServer struct {
	engine       *trade.Engine
	router       router.TradeRouter
	assets       *router.AssetRegistry
	prices       PriceSource
	settings     SettingsStore
	notifier     Notifier
	bech32Prefix string
}

// NewTradeServer creates a new TradeServer. prices may be nil, assets are then listed without a price.
func NewTradeServer(
	engine *trade.Engine,
	tradeRouter router.TradeRouter,
	assets *router.AssetRegistry,
	prices PriceSource,
	settings SettingsStore,
	notifier Notifier,
	bech32Prefix string,
) *TradeServer {
	return &TradeServer{
		engine:       engine,
		router:       tradeRouter,
		assets:       assets,
		prices:       prices,
		settings:     settings,
		notifier:     notifier,
		bech32Prefix: bech32Prefix,
	}
}

// GetSell quotes selling an exact amount in
func (s *TradeServer) GetSell(
	ctx context.Context,
	req *connect.Request[models.QuoteRequest],
) (*connect.Response[models.TradeInfoResponse], error) {
	assetIn, assetOut, amount, err := s.parseQuoteRequest(req.Msg)
	if err != nil {
		return nil, err
	}

	info, err := s.engine.GetSell(ctx, assetIn, assetOut, amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(convertTradeInfo(info)), nil
}

// GetBuy quotes buying an exact amount out
func (s *TradeServer) GetBuy(
	ctx context.Context,
	req *connect.Request[models.QuoteRequest],
) (*connect.Response[models.TradeInfoResponse], error) {
	assetIn, assetOut, amount, err := s.parseQuoteRequest(req.Msg)
	if err != nil {
		return nil, err
	}

	info, err := s.engine.GetBuy(ctx, assetIn, assetOut, amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(convertTradeInfo(info)), nil
}

// GetSellTwap plans a TWAP sell
func (s *TradeServer) GetSellTwap(
	ctx context.Context,
	req *connect.Request[models.TwapRequest],
) (*connect.Response[models.TwapPlanResponse], error) {
	params, err := s.parseTwapRequest(req.Msg)
	if err != nil {
		return nil, err
	}

	plan, err := s.engine.GetSellTwap(ctx, params)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(convertTwapPlan(plan)), nil
}

// GetBuyTwap plans a TWAP buy
func (s *TradeServer) GetBuyTwap(
	ctx context.Context,
	req *connect.Request[models.TwapRequest],
) (*connect.Response[models.TwapPlanResponse], error) {
	params, err := s.parseTwapRequest(req.Msg)
	if err != nil {
		return nil, err
	}

	plan, err := s.engine.GetBuyTwap(ctx, params)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(convertTwapPlan(plan)), nil
}

// GetSellPriceDifference quotes a sell and compares its output with the spot price.
// The result is the price difference input of the TWAP procedures.
func (s *TradeServer) GetSellPriceDifference(
	ctx context.Context,
	req *connect.Request[models.QuoteRequest],
) (*connect.Response[models.PriceDifferenceResponse], error) {
	assetIn, assetOut, amount, err := s.parseQuoteRequest(req.Msg)
	if err != nil {
		return nil, err
	}

	quote, err := s.router.QuoteSell(ctx, assetIn, assetOut, amount)
	if err != nil {
		return nil, toConnectError(fmt.Errorf("%w: %w", trade.ErrRouteUnavailable, err))
	}
	diff, err := trade.QuotePriceDifference(quote)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&models.PriceDifferenceResponse{PriceDifference: diff.String()}), nil
}

// GetSettings returns the current trade settings
func (s *TradeServer) GetSettings(
	ctx context.Context,
	req *connect.Request[models.GetSettingsRequest],
) (*connect.Response[models.SettingsResponse], error) {
	return connect.NewResponse(&models.SettingsResponse{Settings: s.settings.Snapshot()}), nil
}

// UpdateSettings patches the trade settings, in flight computations keep their snapshot
func (s *TradeServer) UpdateSettings(
	ctx context.Context,
	req *connect.Request[models.UpdateSettingsRequest],
) (*connect.Response[models.SettingsResponse], error) {
	updated, err := s.settings.Update(func(current config.TradeSettings) config.TradeSettings {
		applyPatch(&current.Trade, req.Msg.Trade)
		applyPatch(&current.Twap, req.Msg.Twap)
		return current
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	Logger.Info().
		Str("trade_slippage", updated.Trade.Slippage).
		Str("twap_slippage", updated.Twap.Slippage).
		Msg("Trade settings updated")
	return connect.NewResponse(&models.SettingsResponse{Settings: updated}), nil
}

func applyPatch(class *config.TradeClassSettings, patch *models.TradeClassPatch) {
	if patch == nil {
		return
	}
	if patch.Slippage != nil {
		class.Slippage = *patch.Slippage
	}
	if patch.MaxRetries != nil {
		class.MaxRetries = *patch.MaxRetries
	}
}

// ListAssets returns the tradable assets with their USD price.
// A price that cannot be fetched is left empty, the asset is still listed.
func (s *TradeServer) ListAssets(
	ctx context.Context,
	req *connect.Request[models.ListAssetsRequest],
) (*connect.Response[models.ListAssetsResponse], error) {
	assets := s.assets.List()
	infos := make([]models.AssetInfo, len(assets))
	for i, asset := range assets {
		infos[i] = models.AssetInfo{ID: asset.ID, Symbol: asset.Symbol, Decimals: asset.Decimals}
	}
	if s.prices == nil {
		return connect.NewResponse(&models.ListAssetsResponse{Assets: infos}), nil
	}

	var g errgroup.Group
	g.SetLimit(priceLookups)
	for i := range infos {
		g.Go(func() error {
			price, err := s.prices.GetTokenPrice(ctx, infos[i].ID)
			if err != nil {
				Logger.Warn().Err(err).Str("asset", infos[i].ID).Msg("Failed to fetch token price")
				return nil
			}
			infos[i].PriceUSD = price.String()
			return nil
		})
	}
	_ = g.Wait()

	return connect.NewResponse(&models.ListAssetsResponse{Assets: infos}), nil
}

// SubmitTransaction broadcasts a signed transaction. Its progress is reported
// on the notification stream under the returned id.
func (s *TradeServer) SubmitTransaction(
	ctx context.Context,
	req *connect.Request[models.SubmitTransactionRequest],
) (*connect.Response[models.SubmitTransactionResponse], error) {
	signer, err := account.NormalizeAddress(req.Msg.Signer, s.bech32Prefix)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("signer: %w", err))
	}
	signerHex, err := account.ConvertToHex(signer)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("signer: %w", err))
	}
	txBytes, err := base64.StdEncoding.DecodeString(req.Msg.TxBytes)
	if err != nil || len(txBytes) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("tx_bytes must be a non empty base64 string"))
	}

	id, err := s.notifier.Submit(txBytes, req.Msg.Messages)
	if err != nil {
		return nil, toConnectError(err)
	}
	Logger.Info().
		Str("id", id).
		Str("signer", account.Shorten(signer, 8)).
		Msg("Transaction submitted")
	return connect.NewResponse(&models.SubmitTransactionResponse{
		ID:        id,
		Signer:    signer,
		SignerHex: signerHex,
	}), nil
}

// DismissProgress closes the broadcast progress dialog of a transaction
func (s *TradeServer) DismissProgress(
	ctx context.Context,
	req *connect.Request[models.DismissProgressRequest],
) (*connect.Response[models.DismissProgressResponse], error) {
	if err := s.notifier.Dismiss(req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&models.DismissProgressResponse{}), nil
}

func (s *TradeServer) parseQuoteRequest(req *models.QuoteRequest) (router.Asset, router.Asset, decimal.Decimal, error) {
	assetIn, assetOut, err := s.resolvePair(req.AssetIn, req.AssetOut)
	if err != nil {
		return router.Asset{}, router.Asset{}, decimal.Decimal{}, err
	}
	amount, err := parsePositive("amount", req.Amount)
	if err != nil {
		return router.Asset{}, router.Asset{}, decimal.Decimal{}, err
	}
	return assetIn, assetOut, amount, nil
}

func (s *TradeServer) parseTwapRequest(req *models.TwapRequest) (trade.TwapParams, error) {
	assetIn, assetOut, err := s.resolvePair(req.AssetIn, req.AssetOut)
	if err != nil {
		return trade.TwapParams{}, err
	}
	amount, err := parsePositive("amount", req.Amount)
	if err != nil {
		return trade.TwapParams{}, err
	}
	amountMin, err := parseDecimal("amount_min", req.AmountMin)
	if err != nil {
		return trade.TwapParams{}, err
	}
	txFee, err := parseDecimal("tx_fee", req.TxFee)
	if err != nil {
		return trade.TwapParams{}, err
	}
	priceDifference, err := parseDecimal("price_difference", req.PriceDifference)
	if err != nil {
		return trade.TwapParams{}, err
	}
	if req.BlockTimeMs <= 0 || req.BlockTimeMs > trade.MaxBlockTime.Milliseconds() {
		return trade.TwapParams{}, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("%w: block_time_ms %d", trade.ErrInvalidBlockTime, req.BlockTimeMs))
	}

	return trade.TwapParams{
		AssetIn:         assetIn,
		AssetOut:        assetOut,
		Amount:          amount,
		AmountMin:       amountMin,
		TxFee:           txFee,
		PriceDifference: priceDifference,
		BlockTime:       time.Duration(req.BlockTimeMs) * time.Millisecond,
	}, nil
}

func (s *TradeServer) resolvePair(assetInID, assetOutID string) (router.Asset, router.Asset, error) {
	assetIn, err := s.assets.Get(assetInID)
	if err != nil {
		return router.Asset{}, router.Asset{}, connect.NewError(connect.CodeInvalidArgument, err)
	}
	assetOut, err := s.assets.Get(assetOutID)
	if err != nil {
		return router.Asset{}, router.Asset{}, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if assetIn.ID == assetOut.ID {
		return router.Asset{}, router.Asset{}, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("asset in and asset out are both %s", assetIn.ID))
	}
	return assetIn, assetOut, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("%s is not a decimal: %q", field, value))
	}
	return d, nil
}

func parsePositive(field, value string) (decimal.Decimal, error) {
	d, err := parseDecimal(field, value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("%w: %s must be positive", trade.ErrInvalidAmount, field))
	}
	return d, nil
}

// toConnectError maps domain errors to connect codes
func toConnectError(err error) error {
	switch {
	case errors.Is(err, router.ErrNoRoute), errors.Is(err, notify.ErrUnknownTransaction):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, trade.ErrRouteUnavailable), errors.Is(err, notify.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, trade.ErrInvalidAmount),
		errors.Is(err, trade.ErrInvalidBlockTime),
		errors.Is(err, trade.ErrEmptySwaps),
		errors.Is(err, router.ErrUnknownAsset):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		Logger.Error().Err(err).Msg("Unexpected error")
		return connect.NewError(connect.CodeInternal, errors.New("internal server error"))
	}
}

func convertQuote(q *router.Quote) models.Quote {
	return models.Quote{
		Type:           string(q.Type),
		AssetIn:        q.AssetIn,
		AssetOut:       q.AssetOut,
		AmountIn:       q.AssetIn.ToHuman(q.AmountIn).String(),
		AmountOut:      q.AssetOut.ToHuman(q.AmountOut).String(),
		SpotPrice:      q.SpotPrice.String(),
		PriceImpactPct: q.PriceImpactPct.String(),
		Swaps:          q.Swaps,
		HasSwapErrors:  q.HasSwapErrors(),
	}
}

func convertTradeInfo(info *trade.TradeInfo) *models.TradeInfoResponse {
	return &models.TradeInfoResponse{
		Quote:       convertQuote(info.Quote),
		Transaction: info.Transaction,
		Slippage:    info.Slippage,
	}
}

func convertTwapPlan(plan *trade.TwapPlan) *models.TwapPlanResponse {
	order := trade.MatchOrder(plan.Order,
		func(o trade.SellOrder) models.Order { return models.Order{Type: trade.Sell, Sell: &o} },
		func(o trade.BuyOrder) models.Order { return models.Order{Type: trade.Buy, Buy: &o} },
	)
	return &models.TwapPlanResponse{
		Quote:           convertQuote(plan.Quote),
		Repetitions:     plan.Repetitions,
		ExecutionTimeMs: plan.ExecutionTimeMs(),
		Error:           string(plan.Error),
		Budget:          plan.Budget.String(),
		TotalFee:        plan.TotalFee.String(),
		AmountPerTrade:  plan.AmountPerTrade.String(),
		SlippageBound:   plan.SlippageBound.String(),
		Order:           order,
		MaxRetries:      plan.MaxRetries,
	}
}
