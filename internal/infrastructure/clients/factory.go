package clients

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain/interfaces"
	"github.com/tuncanbit/pricefeed/pkg/config"
)

func NewUpstreamClient(cfg *config.UpstreamConfig, logger zerolog.Logger) (interfaces.UpstreamClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderCoinGecko, "":
		return NewCoinGeckoClient(cfg, logger), nil
	case config.ProviderCoinCap:
		return NewCoinCapClient(cfg, logger), nil
	case config.ProviderAlpaca:
		return NewAlpacaClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported upstream provider %q", cfg.Provider)
	}
}
