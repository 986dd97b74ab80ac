package clients

import (
	"strings"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/pkg/config"
)

var coinGeckoAssets = []domain.Asset{
	{Symbol: "BTC", ProviderID: "bitcoin", Name: "Bitcoin"},
	{Symbol: "ETH", ProviderID: "ethereum", Name: "Ethereum"},
	{Symbol: "XRP", ProviderID: "ripple", Name: "XRP"},
	{Symbol: "DOGE", ProviderID: "dogecoin", Name: "Dogecoin"},
	{Symbol: "SOL", ProviderID: "solana", Name: "Solana"},
	{Symbol: "ADA", ProviderID: "cardano", Name: "Cardano"},
	{Symbol: "DOT", ProviderID: "polkadot", Name: "Polkadot"},
	{Symbol: "MATIC", ProviderID: "matic-network", Name: "Polygon"},
	{Symbol: "LINK", ProviderID: "chainlink", Name: "Chainlink"},
	{Symbol: "AVAX", ProviderID: "avalanche-2", Name: "Avalanche"},
}

var coinCapAssets = []domain.Asset{
	{Symbol: "BTC", ProviderID: "bitcoin", Name: "Bitcoin"},
	{Symbol: "ETH", ProviderID: "ethereum", Name: "Ethereum"},
	{Symbol: "XRP", ProviderID: "xrp", Name: "XRP"},
	{Symbol: "DOGE", ProviderID: "dogecoin", Name: "Dogecoin"},
	{Symbol: "SOL", ProviderID: "solana", Name: "Solana"},
	{Symbol: "ADA", ProviderID: "cardano", Name: "Cardano"},
	{Symbol: "DOT", ProviderID: "polkadot", Name: "Polkadot"},
	{Symbol: "MATIC", ProviderID: "polygon", Name: "Polygon"},
	{Symbol: "LINK", ProviderID: "chainlink", Name: "Chainlink"},
	{Symbol: "AVAX", ProviderID: "avalanche", Name: "Avalanche"},
}

var alpacaAssets = []domain.Asset{
	{Symbol: "AAPL", ProviderID: "AAPL", Name: "Apple Inc."},
	{Symbol: "MSFT", ProviderID: "MSFT", Name: "Microsoft Corporation"},
	{Symbol: "GOOGL", ProviderID: "GOOGL", Name: "Alphabet Inc."},
	{Symbol: "AMZN", ProviderID: "AMZN", Name: "Amazon.com Inc."},
	{Symbol: "META", ProviderID: "META", Name: "Meta Platforms Inc."},
	{Symbol: "TSLA", ProviderID: "TSLA", Name: "Tesla Inc."},
	{Symbol: "NVDA", ProviderID: "NVDA", Name: "NVIDIA Corporation"},
}

// DefaultAssets returns the built-in catalog for a provider.
func DefaultAssets(provider string) []domain.Asset {
	var src []domain.Asset
	switch strings.ToLower(provider) {
	case config.ProviderCoinCap:
		src = coinCapAssets
	case config.ProviderAlpaca:
		src = alpacaAssets
	default:
		src = coinGeckoAssets
	}
	out := make([]domain.Asset, len(src))
	copy(out, src)
	return out
}

// NewCatalog builds the tracked set from configured assets, falling back to the provider defaults.
func NewCatalog(cfg *config.UpstreamConfig) *domain.Catalog {
	if len(cfg.Assets) > 0 {
		return domain.NewCatalog(cfg.Assets)
	}
	return domain.NewCatalog(DefaultAssets(cfg.Provider))
}
