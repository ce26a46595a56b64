package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

var maxSlippage = decimal.NewFromInt(100)

// TradeConfigLoader loads the trade settings and the asset registry.
type TradeConfigLoader struct{}

// NewTradeConfigLoader creates a new trade config loader.
func NewTradeConfigLoader() *TradeConfigLoader {
	return &TradeConfigLoader{}
}

// LoadFromFile loads a trade config from a TOML or JSON file.
// Missing settings fall back to DefaultTradeSettings.
func (l *TradeConfigLoader) LoadFromFile(filePath string) (*TradeConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade config file: %w", err)
	}

	tradeConfig := TradeConfig{Settings: DefaultTradeSettings()}

	if strings.HasSuffix(filePath, ".json") {
		if err := json.Unmarshal(data, &tradeConfig); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &tradeConfig); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	if err := tradeConfig.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trade settings: %w", err)
	}
	if err := validateAssets(tradeConfig.Assets); err != nil {
		return nil, fmt.Errorf("invalid assets: %w", err)
	}

	return &tradeConfig, nil
}

// Validate checks both trade classes
func (s TradeSettings) Validate() error {
	if err := s.Trade.Validate(); err != nil {
		return fmt.Errorf("trade: %w", err)
	}
	if err := s.Twap.Validate(); err != nil {
		return fmt.Errorf("twap: %w", err)
	}
	return nil
}

// Validate checks that the slippage is a percentage in [0, 100) and retries are not negative
func (c TradeClassSettings) Validate() error {
	slippage, err := decimal.NewFromString(c.Slippage)
	if err != nil {
		return fmt.Errorf("slippage %q is not a decimal: %w", c.Slippage, err)
	}
	if slippage.IsNegative() || slippage.GreaterThanOrEqual(maxSlippage) {
		return fmt.Errorf("slippage %s must be in [0, 100)", slippage)
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	return nil
}

// SlippagePct returns the parsed slippage. Settings are validated on load
// and on every update so the parse error is not expected.
func (c TradeClassSettings) SlippagePct() decimal.Decimal {
	slippage, err := decimal.NewFromString(c.Slippage)
	if err != nil {
		return decimal.Zero
	}
	return slippage
}

func validateAssets(assets []AssetConfig) error {
	if len(assets) == 0 {
		return errors.New("no assets in config")
	}
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if asset.ID == "" {
			return errors.New("asset id is required")
		}
		if asset.Decimals < 0 || asset.Decimals > 36 {
			return fmt.Errorf("asset %s: decimals must be between 0 and 36", asset.ID)
		}
		if _, ok := seen[asset.ID]; ok {
			return fmt.Errorf("duplicate asset %s", asset.ID)
		}
		seen[asset.ID] = struct{}{}
	}
	return nil
}
