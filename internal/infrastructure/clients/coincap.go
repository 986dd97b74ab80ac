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
	"github.com/tuncanbit/pricefeed/pkg/currency"
)

const DefaultCoinCapURL = "https://rest.coincap.io/v3"

type CoinCapClient struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
	logger     zerolog.Logger
}

func NewCoinCapClient(cfg *config.UpstreamConfig, logger zerolog.Logger) *CoinCapClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultCoinCapURL
	}

	return &CoinCapClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		httpClient: newHTTPClient(cfg.TimeoutDuration()),
		now:        time.Now,
		logger:     logger.With().Str("component", "coincap_api_client").Logger(),
	}
}

func (c *CoinCapClient) Name() string { return config.ProviderCoinCap }

func (c *CoinCapClient) FetchBulk(ctx context.Context, providerIDs []string) ([]domain.RawRecord, error) {
	const op = "coincap assets"

	u, err := url.Parse(c.baseURL + "/assets")
	if err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("invalid base URL: %w", err)}
	}
	q := u.Query()
	q.Set("ids", strings.Join(providerIDs, ","))
	q.Set("limit", fmt.Sprint(len(providerIDs)))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("creating request failed: %w", err)}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	body, err := doRequest(c.httpClient, req, op, c.now)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data      *[]domain.CoinCapAsset `json:"data"`
		Timestamp int64                  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("parsing JSON response failed: %w", err)}
	}
	if response.Data == nil {
		return nil, &domain.TransientError{Op: op, Err: errors.New("unexpected response format: missing data list")}
	}

	records := make([]domain.RawRecord, 0, len(*response.Data))
	for _, a := range *response.Data {
		records = append(records, domain.RawRecord{
			ProviderID:       a.ID,
			Symbol:           strings.ToUpper(a.Symbol),
			Name:             a.Name,
			Price:            currency.ParseOptional(a.PriceUSD),
			ChangePercent24h: currency.ParseOptional(a.ChangePercent24Hr),
			Volume:           currency.ParseOptional(a.VolumeUSD24Hr),
			MarketCap:        currency.ParseOptional(a.MarketCapUSD),
		})
	}

	c.logger.Debug().Int("count", len(records)).Msg("Fetched asset data")
	return records, nil
}
