package router

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
)

// ErrUnknownAsset is returned for ids missing from the registry
var ErrUnknownAsset = errors.New("unknown asset")

// AssetRegistry resolves assets by id. It is read only after construction.
type AssetRegistry struct {
	assets map[string]Asset
}

// NewAssetRegistry builds the registry from the trade config assets
func NewAssetRegistry(assets []config.AssetConfig) *AssetRegistry {
	registry := &AssetRegistry{assets: make(map[string]Asset, len(assets))}
	for _, a := range assets {
		registry.assets[a.ID] = Asset{ID: a.ID, Symbol: a.Symbol, Decimals: a.Decimals}
	}
	return registry
}

// Get returns the asset with the given id
func (r *AssetRegistry) Get(id string) (Asset, error) {
	asset, ok := r.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return asset, nil
}

// List returns all assets sorted by id
func (r *AssetRegistry) List() []Asset {
	list := make([]Asset, 0, len(r.assets))
	for _, asset := range r.assets {
		list = append(list, asset)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
