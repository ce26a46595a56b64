// Package chain submits signed transactions to a Cosmos SDK chain over its REST gateway.
package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sugawarayuuta/sonnet"

	"github.com/Cogwheel-Validator/spectra-trade/trader/notify"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "chain").Logger()
}

const (
	broadcastPath = "/cosmos/tx/v1beta1/txs"
	broadcastMode = "BROADCAST_MODE_SYNC"
)

// errNotIncluded is returned while the chain does not know the transaction yet
var errNotIncluded = errors.New("transaction not included yet")

// SubmitterConfig controls broadcasting and inclusion polling
type SubmitterConfig struct {
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// PollInterval is the initial delay between inclusion checks
	PollInterval time.Duration
	// MaxPollInterval caps the delay between inclusion checks
	MaxPollInterval time.Duration
	// InclusionTimeout is how long to wait for inclusion before giving up
	InclusionTimeout time.Duration
}

// DefaultSubmitterConfig returns defaults fitting a ~6s block time
func DefaultSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		Timeout:          10 * time.Second,
		PollInterval:     time.Second,
		MaxPollInterval:  5 * time.Second,
		InclusionTimeout: 2 * time.Minute,
	}
}

// RestSubmitter implements notify.Submitter against the cosmos tx service
type RestSubmitter struct {
	baseURL    string
	httpClient *http.Client
	config     SubmitterConfig
}

var _ notify.Submitter = (*RestSubmitter)(nil)

// NewRestSubmitter creates a submitter for the REST endpoint at baseURL
func NewRestSubmitter(baseURL string, config SubmitterConfig) (*RestSubmitter, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid chain rest url: %w", err)
	}
	return &RestSubmitter{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}, nil
}

type broadcastRequest struct {
	TxBytes string `json:"tx_bytes"`
	Mode    string `json:"mode"`
}

type txResponse struct {
	Height string `json:"height"`
	TxHash string `json:"txhash"`
	Code   uint32 `json:"code"`
	RawLog string `json:"raw_log"`
}

type txEnvelope struct {
	TxResponse txResponse `json:"tx_response"`
}

// Submit broadcasts txBytes and follows the transaction until it is included.
// A transaction rejected by CheckTx is reported as an error status.
func (s *RestSubmitter) Submit(ctx context.Context, txBytes []byte) (<-chan notify.Status, error) {
	if len(txBytes) == 0 {
		return nil, errors.New("empty transaction")
	}

	statuses := make(chan notify.Status, 2)
	go func() {
		defer close(statuses)

		resp, err := s.broadcast(ctx, txBytes)
		if err != nil {
			statuses <- notify.Status{Kind: notify.StatusError, Err: err}
			return
		}
		if resp.Code != 0 {
			statuses <- notify.Status{
				Kind:   notify.StatusError,
				TxHash: resp.TxHash,
				Err:    fmt.Errorf("check tx failed with code %d: %s", resp.Code, resp.RawLog),
			}
			return
		}
		statuses <- notify.Status{Kind: notify.StatusBroadcast, TxHash: resp.TxHash}

		included, err := s.waitForInclusion(ctx, resp.TxHash)
		if err != nil {
			statuses <- notify.Status{Kind: notify.StatusError, TxHash: resp.TxHash, Err: err}
			return
		}
		height, err := strconv.ParseInt(included.Height, 10, 64)
		if err != nil {
			// the tx is in a block either way, only the height is unknown
			log.Warn().Err(err).Str("hash", included.TxHash).Str("height", included.Height).Msg("Invalid block height in tx response")
			height = 0
		}
		statuses <- notify.Status{
			Kind:   notify.StatusInBlock,
			TxHash: included.TxHash,
			Height: height,
			Failed: included.Code != 0,
		}
	}()
	return statuses, nil
}

func (s *RestSubmitter) broadcast(ctx context.Context, txBytes []byte) (txResponse, error) {
	payload, err := sonnet.Marshal(broadcastRequest{
		TxBytes: base64.StdEncoding.EncodeToString(txBytes),
		Mode:    broadcastMode,
	})
	if err != nil {
		return txResponse{}, fmt.Errorf("failed to encode broadcast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+broadcastPath, bytes.NewReader(payload))
	if err != nil {
		return txResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, code, err := s.do(req)
	if err != nil {
		return txResponse{}, fmt.Errorf("broadcast failed: %w", err)
	}
	if code != http.StatusOK {
		return txResponse{}, fmt.Errorf("broadcast failed: HTTP %d: %s", code, body)
	}

	var envelope txEnvelope
	if err := sonnet.Unmarshal(body, &envelope); err != nil {
		return txResponse{}, fmt.Errorf("failed to parse broadcast response: %w", err)
	}
	log.Debug().Str("hash", envelope.TxResponse.TxHash).Uint32("code", envelope.TxResponse.Code).Msg("Transaction broadcast")
	return envelope.TxResponse, nil
}

func (s *RestSubmitter) waitForInclusion(ctx context.Context, hash string) (txResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.PollInterval
	policy.MaxInterval = s.config.MaxPollInterval
	policy.RandomizationFactor = 0

	return backoff.Retry(ctx, func() (txResponse, error) {
		return s.getTx(ctx, hash)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(s.config.InclusionTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Str("hash", hash).Dur("retry_in", next).Msg("Waiting for inclusion")
		}),
	)
}

func (s *RestSubmitter) getTx(ctx context.Context, hash string) (txResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+broadcastPath+"/"+url.PathEscape(hash), nil)
	if err != nil {
		return txResponse{}, backoff.Permanent(err)
	}

	body, code, err := s.do(req)
	if err != nil {
		return txResponse{}, err
	}
	switch {
	case code == http.StatusNotFound:
		return txResponse{}, errNotIncluded
	case code >= 400 && code < 500:
		return txResponse{}, backoff.Permanent(fmt.Errorf("HTTP %d: %s", code, body))
	case code != http.StatusOK:
		return txResponse{}, fmt.Errorf("HTTP %d: %s", code, body)
	}

	var envelope txEnvelope
	if err := sonnet.Unmarshal(body, &envelope); err != nil {
		return txResponse{}, backoff.Permanent(fmt.Errorf("failed to parse tx response: %w", err))
	}
	return envelope.TxResponse, nil
}

func (s *RestSubmitter) do(req *http.Request) ([]byte, int, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
