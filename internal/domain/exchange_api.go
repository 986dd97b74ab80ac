package domain

// CoinGeckoMarket is one element of the /coins/markets response.
type CoinGeckoMarket struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	LastUpdated              string   `json:"last_updated"`
}

type CoinCapResponse struct {
	Data      []CoinCapAsset `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// CoinCapAsset carries numbers as strings; missing values are JSON null.
type CoinCapAsset struct {
	ID                string  `json:"id"`
	Rank              string  `json:"rank"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Supply            *string `json:"supply"`
	MaxSupply         *string `json:"maxSupply"`
	MarketCapUSD      *string `json:"marketCapUsd"`
	VolumeUSD24Hr     *string `json:"volumeUsd24Hr"`
	PriceUSD          *string `json:"priceUsd"`
	ChangePercent24Hr *string `json:"changePercent24Hr"`
	VWAP24Hr          *string `json:"vwap24Hr"`
}

// ProviderErrorEnvelope covers the {"error": ...} and {"status": {"error_code", "error_message"}}
// bodies returned by the supported providers.
type ProviderErrorEnvelope struct {
	Error  string `json:"error"`
	Status *struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}
