package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/pkg/config"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
	logger     zerolog.Logger
}

func NewCoinGeckoClient(cfg *config.UpstreamConfig, logger zerolog.Logger) *CoinGeckoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	vs := cfg.VsCurrency
	if vs == "" {
		vs = "usd"
	}

	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		vsCurrency: strings.ToLower(vs),
		userAgent:  cfg.UserAgent,
		httpClient: newHTTPClient(cfg.TimeoutDuration()),
		now:        time.Now,
		logger:     logger.With().Str("component", "coingecko_api_client").Logger(),
	}
}

func (c *CoinGeckoClient) Name() string { return config.ProviderCoinGecko }

func (c *CoinGeckoClient) FetchBulk(ctx context.Context, providerIDs []string) ([]domain.RawRecord, error) {
	const op = "coingecko markets"

	u, err := url.Parse(c.baseURL + "/coins/markets")
	if err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("invalid base URL: %w", err)}
	}

	q := u.Query()
	q.Set("vs_currency", c.vsCurrency)
	q.Set("ids", strings.Join(providerIDs, ","))
	q.Set("order", "market_cap_desc")
	q.Set("per_page", "100")
	q.Set("page", "1")
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("creating request failed: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		if strings.Contains(c.baseURL, "pro-api") {
			req.Header.Set("x-cg-pro-api-key", c.apiKey)
		} else {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}
	}

	body, err := doRequest(c.httpClient, req, op, c.now)
	if err != nil {
		return nil, err
	}

	if !isJSONArray(body) {
		return nil, &domain.TransientError{Op: op, Err: errors.New("unexpected response format: expected a list")}
	}

	var markets []domain.CoinGeckoMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("parsing JSON response failed: %w", err)}
	}

	records := make([]domain.RawRecord, 0, len(markets))
	for _, m := range markets {
		records = append(records, domain.RawRecord{
			ProviderID:       m.ID,
			Symbol:           strings.ToUpper(m.Symbol),
			Name:             m.Name,
			Price:            m.CurrentPrice,
			ChangePercent24h: m.PriceChangePercentage24h,
			Volume:           m.TotalVolume,
			MarketCap:        m.MarketCap,
		})
	}

	c.logger.Debug().Int("count", len(records)).Msg("Fetched market data")
	return records, nil
}
