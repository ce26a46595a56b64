// Package osmosis implements the trade router on top of the Osmosis SQS API.
package osmosis

const (
	// SwapVenueName is the pool label every hop of a TWAP route is tagged with.
	// All quotes come from the poolmanager, so there is a single venue.
	SwapVenueName = "osmosis-poolmanager"

	msgSwapExactAmountIn  = "/osmosis.poolmanager.v1beta1.MsgSwapExactAmountIn"
	msgSwapExactAmountOut = "/osmosis.poolmanager.v1beta1.MsgSwapExactAmountOut"
)

// Coin is a cosmos sdk coin
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// SwapAmountInRoute is one hop of an exact in swap
type SwapAmountInRoute struct {
	PoolID        string `json:"pool_id"`
	TokenOutDenom string `json:"token_out_denom"`
}

// SwapAmountOutRoute is one hop of an exact out swap
type SwapAmountOutRoute struct {
	PoolID       string `json:"pool_id"`
	TokenInDenom string `json:"token_in_denom"`
}

// MsgSwapExactAmountIn is the amino JSON of the poolmanager message.
// Sender is left empty, the wallet fills it in when signing.
type MsgSwapExactAmountIn struct {
	Sender            string              `json:"sender"`
	Routes            []SwapAmountInRoute `json:"routes"`
	TokenIn           Coin                `json:"token_in"`
	TokenOutMinAmount string              `json:"token_out_min_amount"`
}

// MsgSwapExactAmountOut is the amino JSON of the poolmanager message
type MsgSwapExactAmountOut struct {
	Sender           string               `json:"sender"`
	Routes           []SwapAmountOutRoute `json:"routes"`
	TokenInMaxAmount string               `json:"token_in_max_amount"`
	TokenOut         Coin                 `json:"token_out"`
}
