package sqsquery

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TokenRequest is an amount of a denom in base units
type TokenRequest struct {
	Denom  string
	Amount string
}

// QuoteRequest selects the swap method.
// Exact amount in: TokenIn and TokenOutDenom. Exact amount out: TokenOut and TokenInDenom.
type QuoteRequest struct {
	TokenIn       *TokenRequest
	TokenOut      *TokenRequest
	TokenInDenom  string
	TokenOutDenom string
	SingleRoute   bool
}

// CoinAmount accepts both encodings SQS uses for amounts: a bare
// integer string or a {"denom","amount"} object.
type CoinAmount struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// UnmarshalJSON implements json.Unmarshaler
func (c *CoinAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.Amount)
	}
	type coin CoinAmount
	var parsed coin
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("invalid coin amount %s: %w", string(data), err)
	}
	*c = CoinAmount(parsed)
	return nil
}

type RouteTokenResponse struct {
	AmountIn                CoinAmount `json:"amount_in"`
	AmountOut               CoinAmount `json:"amount_out"`
	Route                   []Route    `json:"route"`
	LiquidityCap            string     `json:"liquidity_cap"`
	LiquidityCapOverflow    bool       `json:"liquidity_cap_overflow"`
	EffectiveFee            string     `json:"effective_fee"`
	PriceImpact             string     `json:"price_impact"`
	InBaseOutQuoteSpotPrice string     `json:"in_base_out_quote_spot_price"`
}

type Route struct {
	Pools     []Pool `json:"pools"`
	HasCwPool bool   `json:"has-cw-pool"`
	OutAmount string `json:"out_amount"`
	InAmount  string `json:"in_amount"`
}

type Pool struct {
	ID            int    `json:"id"`
	Type          int    `json:"type"`
	SpreadFactor  string `json:"spread_factor"`
	TokenOutDenom string `json:"token_out_denom"`
	TokenInDenom  string `json:"token_in_denom"`
	TakerFee      string `json:"taker_fee"`
	LiquidityCap  string `json:"liquidity_cap"`
}
