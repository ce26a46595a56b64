package rpc_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-trade/trader/account"
	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
	"github.com/Cogwheel-Validator/spectra-trade/trader/models"
	"github.com/Cogwheel-Validator/spectra-trade/trader/notify"
	"github.com/Cogwheel-Validator/spectra-trade/trader/router"
	"github.com/Cogwheel-Validator/spectra-trade/trader/rpc"
	"github.com/Cogwheel-Validator/spectra-trade/trader/settings"
	"github.com/Cogwheel-Validator/spectra-trade/trader/trade"
)

var (
	osmo = router.Asset{ID: "uosmo", Symbol: "OSMO", Decimals: 6}
	atom = router.Asset{ID: "uatom", Symbol: "ATOM", Decimals: 6}
)

// stubRouter quotes every pair with the same amounts, or fails with err
type stubRouter struct {
	err error
}

func (s *stubRouter) quote(tradeType router.TradeType, assetIn, assetOut router.Asset, amountIn, amountOut int64) (*router.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	return router.NewQuote(router.Quote{
		Type:           tradeType,
		AssetIn:        assetIn,
		AssetOut:       assetOut,
		AmountIn:       decimal.NewFromInt(amountIn),
		AmountOut:      decimal.NewFromInt(amountOut),
		SpotPrice:      decimal.RequireFromString("0.2"),
		PriceImpactPct: decimal.RequireFromString("-1"),
		Swaps: []router.Swap{{
			PoolID:        "1",
			AssetIn:       assetIn.ID,
			AssetOut:      assetOut.ID,
			AmountIn:      decimal.NewFromInt(amountIn),
			CalculatedOut: decimal.NewFromInt(amountOut),
		}},
	}, router.TxBuilderFunc(func(q *router.Quote, limit decimal.Decimal) (*router.Transaction, error) {
		return &router.Transaction{TypeURL: "/test.MsgSwap", Msg: json.RawMessage(`{"limit":"` + limit.String() + `"}`)}, nil
	})), nil
}

func (s *stubRouter) QuoteSell(ctx context.Context, assetIn, assetOut router.Asset, amountIn decimal.Decimal) (*router.Quote, error) {
	return s.quote(router.TradeTypeSell, assetIn, assetOut, assetIn.ToBase(amountIn).IntPart(), 1985000)
}

func (s *stubRouter) QuoteBuy(ctx context.Context, assetIn, assetOut router.Asset, amountOut decimal.Decimal) (*router.Quote, error) {
	return s.quote(router.TradeTypeBuy, assetIn, assetOut, 5050000, assetOut.ToBase(amountOut).IntPart())
}

// stubPrices prices uosmo only
type stubPrices struct{}

func (stubPrices) GetTokenPrice(ctx context.Context, denom string) (decimal.Decimal, error) {
	if denom == "uosmo" {
		return decimal.RequireFromString("0.45"), nil
	}
	return decimal.Decimal{}, errors.New("token price not found")
}

type fakeNotifier struct {
	closed     bool
	submitted  [][]byte
	feed       chan notify.Notification
	subscribed chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		feed:       make(chan notify.Notification, 4),
		subscribed: make(chan struct{}, 1),
	}
}

func (f *fakeNotifier) Submit(txBytes []byte, messages notify.Messages) (string, error) {
	if f.closed {
		return "", notify.ErrClosed
	}
	f.submitted = append(f.submitted, txBytes)
	return "tx-1", nil
}

func (f *fakeNotifier) Dismiss(id string) error {
	if id != "tx-1" {
		return notify.ErrUnknownTransaction
	}
	return nil
}

func (f *fakeNotifier) SubscribeChan(buffer int) (<-chan notify.Notification, func()) {
	f.subscribed <- struct{}{}
	return f.feed, func() {}
}

type testEnv struct {
	server   *httptest.Server
	notifier *fakeNotifier
	router   *stubRouter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := settings.NewStore(config.DefaultTradeSettings())
	assert.NoError(t, err)

	r := &stubRouter{}
	notifier := newFakeNotifier()
	assets := router.NewAssetRegistry([]config.AssetConfig{
		{ID: osmo.ID, Symbol: osmo.Symbol, Decimals: osmo.Decimals},
		{ID: atom.ID, Symbol: atom.Symbol, Decimals: atom.Decimals},
	})
	trader := rpc.NewTradeServer(trade.NewEngine(r, store), r, assets, stubPrices{}, store, notifier, "osmo")

	srv, err := rpc.NewServer(context.Background(), &rpc.ServerConfig{
		Address:        "localhost:0",
		AllowedOrigins: []string{"*"},
	}, trader)
	assert.NoError(t, err)

	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)
	return &testEnv{server: server, notifier: notifier, router: r}
}

func (e *testEnv) call(t *testing.T, method string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	assert.NoError(t, err)

	resp, err := http.Post(e.server.URL+"/trader.v1.TradeService/"+method, "application/json", bytes.NewReader(payload))
	assert.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	if out != nil {
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type connectError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestGetSell(t *testing.T) {
	env := newTestEnv(t)

	var resp models.TradeInfoResponse
	status := env.call(t, "GetSell", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uatom", Amount: "10"}, &resp)
	assert.Equal(t, status, http.StatusOK)
	assert.Equal(t, resp.Slippage, "1.96515")
	assert.Equal(t, resp.Quote.AmountIn, "10")
	assert.Equal(t, resp.Quote.AmountOut, "1.985")
	assert.Equal(t, resp.Quote.PriceImpactPct, "-1")
	assert.Equal(t, resp.Transaction.TypeURL, "/test.MsgSwap")
	assert.Equal(t, string(resp.Transaction.Msg), `{"limit":"1965150"}`)
}

func TestGetBuy(t *testing.T) {
	env := newTestEnv(t)

	var resp models.TradeInfoResponse
	status := env.call(t, "GetBuy", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uatom", Amount: "1"}, &resp)
	assert.Equal(t, status, http.StatusOK)
	assert.Equal(t, resp.Slippage, "5.1005")
	assert.Equal(t, resp.Quote.Type, "buy")
}

func TestGetSell_InvalidArguments(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  models.QuoteRequest
	}{
		{"unknown asset", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uxyz", Amount: "10"}},
		{"same asset", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uosmo", Amount: "10"}},
		{"zero amount", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uatom", Amount: "0"}},
		{"not a number", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uatom", Amount: "ten"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cerr connectError
			status := env.call(t, "GetSell", tt.req, &cerr)
			assert.Equal(t, status, http.StatusBadRequest)
			assert.Equal(t, cerr.Code, "invalid_argument")
		})
	}
}

func TestGetSell_NoRoute(t *testing.T) {
	env := newTestEnv(t)
	env.router.err = router.ErrNoRoute

	var cerr connectError
	status := env.call(t, "GetSell", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uatom", Amount: "10"}, &cerr)
	assert.Equal(t, status, http.StatusNotFound)
	assert.Equal(t, cerr.Code, "not_found")
}

func TestGetSellTwap(t *testing.T) {
	env := newTestEnv(t)

	var resp models.TwapPlanResponse
	status := env.call(t, "GetSellTwap", models.TwapRequest{
		AssetIn:         "uosmo",
		AssetOut:        "uatom",
		Amount:          "1000",
		AmountMin:       "10",
		TxFee:           "0.1",
		PriceDifference: "0.3",
		BlockTimeMs:     6000,
	}, &resp)
	assert.Equal(t, status, http.StatusOK)
	assert.Equal(t, resp.Repetitions, int64(3))
	assert.Equal(t, resp.ExecutionTimeMs, int64(90000))
	assert.Equal(t, resp.TotalFee, "1.8")
	assert.Equal(t, resp.Budget, "1000")
	assert.Equal(t, resp.Error, "")
	assert.Equal(t, resp.Order.Type, trade.Sell)
	assert.NotNil(t, resp.Order.Sell)
	assert.Nil(t, resp.Order.Buy)
	assert.Equal(t, resp.Order.Sell.Route[0].Pool, trade.DefaultPoolLabel)
	assert.Equal(t, resp.MaxRetries, 5)
}

func TestGetBuyTwap_InvalidBlockTime(t *testing.T) {
	env := newTestEnv(t)

	for _, blockTimeMs := range []int64{0, -6000, math.MaxInt64 / 1000, math.MaxInt64} {
		var cerr connectError
		status := env.call(t, "GetBuyTwap", models.TwapRequest{
			AssetIn:     "uosmo",
			AssetOut:    "uatom",
			Amount:      "10",
			BlockTimeMs: blockTimeMs,
		}, &cerr)
		assert.Equal(t, status, http.StatusBadRequest)
		assert.Equal(t, cerr.Code, "invalid_argument")
	}
}

func TestGetSellPriceDifference(t *testing.T) {
	env := newTestEnv(t)

	var resp models.PriceDifferenceResponse
	status := env.call(t, "GetSellPriceDifference", models.QuoteRequest{AssetIn: "uosmo", AssetOut: "uatom", Amount: "10"}, &resp)
	assert.Equal(t, status, http.StatusOK)
	// (10000000 * 0.2 - 1985000) / 1985000 * 100
	assert.Equal(t, resp.PriceDifference, "0.76")
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	var current models.SettingsResponse
	assert.Equal(t, env.call(t, "GetSettings", models.GetSettingsRequest{}, &current), http.StatusOK)
	assert.Equal(t, current.Settings.Trade.Slippage, "1")
	assert.Equal(t, current.Settings.Twap.Slippage, "3")

	slippage := "2.5"
	var updated models.SettingsResponse
	status := env.call(t, "UpdateSettings", models.UpdateSettingsRequest{
		Twap: &models.TradeClassPatch{Slippage: &slippage},
	}, &updated)
	assert.Equal(t, status, http.StatusOK)
	assert.Equal(t, updated.Settings.Twap.Slippage, "2.5")
	assert.Equal(t, updated.Settings.Trade.Slippage, "1")

	invalid := "150"
	var cerr connectError
	status = env.call(t, "UpdateSettings", models.UpdateSettingsRequest{
		Trade: &models.TradeClassPatch{Slippage: &invalid},
	}, &cerr)
	assert.Equal(t, status, http.StatusBadRequest)

	assert.Equal(t, env.call(t, "GetSettings", models.GetSettingsRequest{}, &current), http.StatusOK)
	assert.Equal(t, current.Settings.Trade.Slippage, "1")
	assert.Equal(t, current.Settings.Twap.Slippage, "2.5")
}

func TestListAssets(t *testing.T) {
	env := newTestEnv(t)

	var resp models.ListAssetsResponse
	assert.Equal(t, env.call(t, "ListAssets", models.ListAssetsRequest{}, &resp), http.StatusOK)
	assert.Equal(t, len(resp.Assets), 2)
	assert.Equal(t, resp.Assets[0].ID, "uatom")
	assert.Equal(t, resp.Assets[0].PriceUSD, "")
	assert.Equal(t, resp.Assets[1].ID, "uosmo")
	assert.Equal(t, resp.Assets[1].Decimals, int32(6))
	assert.Equal(t, resp.Assets[1].PriceUSD, "0.45")
}

func TestSubmitTransaction(t *testing.T) {
	const signerHex = "0x0102030405060708090a0b0c0d0e0f1011121314"
	signer, err := account.ConvertFromHex(signerHex, "osmo")
	assert.NoError(t, err)
	cosmosSigner, err := account.ConvertAddress(signer, "cosmos")
	assert.NoError(t, err)

	for _, input := range []string{signer, cosmosSigner, signerHex} {
		env := newTestEnv(t)

		var resp models.SubmitTransactionResponse
		status := env.call(t, "SubmitTransaction", models.SubmitTransactionRequest{
			Signer:  input,
			TxBytes: base64.StdEncoding.EncodeToString([]byte("signed")),
		}, &resp)
		assert.Equal(t, status, http.StatusOK)
		assert.Equal(t, resp.ID, "tx-1")
		assert.Equal(t, resp.Signer, signer)
		assert.Equal(t, resp.SignerHex, signerHex)
		assert.Equal(t, len(env.notifier.submitted), 1)
		assert.Equal(t, string(env.notifier.submitted[0]), "signed")
	}
}

func TestSubmitTransaction_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	signer, err := account.ConvertFromHex("0x0102030405060708090a0b0c0d0e0f1011121314", "osmo")
	assert.NoError(t, err)
	badChecksum := signer[:len(signer)-1] + "q"
	if strings.HasSuffix(signer, "q") {
		badChecksum = signer[:len(signer)-1] + "p"
	}

	tests := []struct {
		name string
		req  models.SubmitTransactionRequest
	}{
		{"bad checksum", models.SubmitTransactionRequest{Signer: badChecksum, TxBytes: "c2lnbmVk"}},
		{"empty signer", models.SubmitTransactionRequest{TxBytes: "c2lnbmVk"}},
		{"bad base64", models.SubmitTransactionRequest{Signer: signer, TxBytes: "%%%"}},
		{"empty tx", models.SubmitTransactionRequest{Signer: signer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cerr connectError
			assert.Equal(t, env.call(t, "SubmitTransaction", tt.req, &cerr), http.StatusBadRequest)
			assert.Equal(t, cerr.Code, "invalid_argument")
		})
	}
	assert.Equal(t, len(env.notifier.submitted), 0)
}

func TestSubmitTransaction_Closed(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.closed = true
	signer, err := account.ConvertFromHex("0x0102030405060708090a0b0c0d0e0f1011121314", "osmo")
	assert.NoError(t, err)

	var cerr connectError
	req := models.SubmitTransactionRequest{Signer: signer, TxBytes: "c2lnbmVk"}
	assert.Equal(t, env.call(t, "SubmitTransaction", req, &cerr), http.StatusServiceUnavailable)
	assert.Equal(t, cerr.Code, "unavailable")
	assert.Equal(t, len(env.notifier.submitted), 0)
}

func TestDismissProgress(t *testing.T) {
	env := newTestEnv(t)

	var resp models.DismissProgressResponse
	assert.Equal(t, env.call(t, "DismissProgress", models.DismissProgressRequest{ID: "tx-1"}, &resp), http.StatusOK)

	var cerr connectError
	assert.Equal(t, env.call(t, "DismissProgress", models.DismissProgressRequest{ID: "tx-2"}, &cerr), http.StatusNotFound)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/server/health")
	assert.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestNotificationStream(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/notifications/ws?id=tx-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	defer func() {
		_ = conn.Close()
	}()

	select {
	case <-env.notifier.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never subscribed")
	}

	env.notifier.feed <- notify.Notification{ID: "tx-other", Type: notify.TypeProgress}
	env.notifier.feed <- notify.Notification{ID: "tx-1", Type: notify.TypeSuccess, Message: "done", Toast: true, Timestamp: 42}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n notify.Notification
	assert.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, n.ID, "tx-1")
	assert.Equal(t, n.Type, notify.TypeSuccess)
	assert.Equal(t, n.Message, "done")
	assert.True(t, n.Toast)
	assert.Equal(t, n.Timestamp, int64(42))
}

func TestServer_StartTLS_MissingCertificate(t *testing.T) {
	store, err := settings.NewStore(config.DefaultTradeSettings())
	assert.NoError(t, err)
	r := &stubRouter{}
	trader := rpc.NewTradeServer(trade.NewEngine(r, store), r, router.NewAssetRegistry(nil), nil, store, newFakeNotifier(), "osmo")

	srv, err := rpc.NewServer(context.Background(), &rpc.ServerConfig{
		Address:        "127.0.0.1:0",
		AllowedOrigins: []string{"*"},
	}, trader)
	assert.NoError(t, err)

	err = srv.StartTLS(filepath.Join(t.TempDir(), "cert.pem"), filepath.Join(t.TempDir(), "key.pem"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}
