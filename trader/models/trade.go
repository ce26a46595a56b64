// Package models holds the JSON request and response bodies of the trade service.
// Amounts are decimal strings; human amounts unless the field says base units.
package models

import (
	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
	"github.com/Cogwheel-Validator/spectra-trade/trader/notify"
	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
	"github.com/Cogwheel-Validator/spectra-trade/trader/trade"
)

// QuoteRequest - GetSell, GetBuy and GetSellPriceDifference body
type QuoteRequest struct {
	AssetIn  string `json:"asset_in"`  // e.g., "uosmo"
	AssetOut string `json:"asset_out"` // e.g., "ibc/27394F..."
	Amount   string `json:"amount"`    // amount in for a sell, amount out for a buy, e.g. "1.5"
}

// Quote is a router quote as shown to clients
type Quote struct {
	Type           string        `json:"type"`
	AssetIn        router.Asset  `json:"asset_in"`
	AssetOut       router.Asset  `json:"asset_out"`
	AmountIn       string        `json:"amount_in"`  // human
	AmountOut      string        `json:"amount_out"` // human
	SpotPrice      string        `json:"spot_price"`
	PriceImpactPct string        `json:"price_impact_pct"`
	Swaps          []router.Swap `json:"swaps"` // base units
	HasSwapErrors  bool          `json:"has_swap_errors"`
}

// TradeInfoResponse - GetSell and GetBuy result
type TradeInfoResponse struct {
	Quote       Quote               `json:"quote"`
	Transaction *router.Transaction `json:"transaction"`
	Slippage    string              `json:"slippage"` // min amount out (sell) or max amount in (buy)
}

// PriceDifferenceResponse - GetSellPriceDifference result
type PriceDifferenceResponse struct {
	PriceDifference string `json:"price_difference"` // percent, e.g. "0.35"
}

// TwapRequest - GetSellTwap and GetBuyTwap body
type TwapRequest struct {
	AssetIn         string `json:"asset_in"`
	AssetOut        string `json:"asset_out"`
	Amount          string `json:"amount"`           // total amount in (sell) or out (buy)
	AmountMin       string `json:"amount_min"`       // smallest amount one repetition may trade
	TxFee           string `json:"tx_fee"`           // flat fee of one transaction, in asset in
	PriceDifference string `json:"price_difference"` // percent, see GetSellPriceDifference
	BlockTimeMs     int64  `json:"block_time_ms"`    // e.g. 6000
}

// Order is the tagged order descriptor, exactly one of Sell and Buy is set
type Order struct {
	Type trade.Direction  `json:"type"`
	Sell *trade.SellOrder `json:"sell,omitempty"`
	Buy  *trade.BuyOrder  `json:"buy,omitempty"`
}

// TwapPlanResponse - GetSellTwap and GetBuyTwap result
type TwapPlanResponse struct {
	Quote           Quote  `json:"quote"`
	Repetitions     int64  `json:"repetitions"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Error           string `json:"error,omitempty"` // OrderTooSmall, OrderTooBig, OrderImpactTooBig
	Budget          string `json:"budget"`
	TotalFee        string `json:"total_fee"`
	AmountPerTrade  string `json:"amount_per_trade"`
	SlippageBound   string `json:"slippage_bound"`
	Order           Order  `json:"order"`
	MaxRetries      int    `json:"max_retries"`
}

// GetSettingsRequest - GetSettings body
type GetSettingsRequest struct{}

// TradeClassPatch updates some fields of one trade class
type TradeClassPatch struct {
	Slippage   *string `json:"slippage,omitempty"`
	MaxRetries *int    `json:"max_retries,omitempty"`
}

// UpdateSettingsRequest - UpdateSettings body, absent classes stay untouched
type UpdateSettingsRequest struct {
	Trade *TradeClassPatch `json:"trade,omitempty"`
	Twap  *TradeClassPatch `json:"twap,omitempty"`
}

// SettingsResponse - GetSettings and UpdateSettings result
type SettingsResponse struct {
	Settings config.TradeSettings `json:"settings"`
}

// ListAssetsRequest - ListAssets body
type ListAssetsRequest struct{}

// AssetInfo is a tradable asset as listed to clients
type AssetInfo struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	PriceUSD string `json:"price_usd,omitempty"` // empty when the price source failed
}

// ListAssetsResponse - ListAssets result
type ListAssetsResponse struct {
	Assets []AssetInfo `json:"assets"`
}

// SubmitTransactionRequest - SubmitTransaction body
type SubmitTransactionRequest struct {
	Signer   string          `json:"signer"`   // bech32 address of any chain, or 0x hex account bytes
	TxBytes  string          `json:"tx_bytes"` // base64 signed transaction
	Messages notify.Messages `json:"messages"`
}

// SubmitTransactionResponse - SubmitTransaction result
type SubmitTransactionResponse struct {
	ID        string `json:"id"`         // notification id of the transaction
	Signer    string `json:"signer"`     // signer with the trading chain prefix
	SignerHex string `json:"signer_hex"` // signer account bytes, 0x prefixed
}

// DismissProgressRequest - DismissProgress body
type DismissProgressRequest struct {
	ID string `json:"id"`
}

// DismissProgressResponse - DismissProgress result
type DismissProgressResponse struct{}
