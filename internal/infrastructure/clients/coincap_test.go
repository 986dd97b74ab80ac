package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/pkg/config"
)

func newTestCoinCap(t *testing.T, handler http.HandlerFunc) *CoinCapClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCoinCapClient(&config.UpstreamConfig{BaseURL: srv.URL, Timeout: 5, APIKey: "cc-key"}, zerolog.Nop())
}

func TestCoinCapFetchBulk(t *testing.T) {
	client := newTestCoinCap(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets", r.URL.Path)
		assert.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "Bearer cc-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[
			{"id":"bitcoin","symbol":"BTC","name":"Bitcoin","priceUsd":"50000.1200","changePercent24Hr":"-1.25","volumeUsd24Hr":"123.5","marketCapUsd":"9000"},
			{"id":"ethereum","symbol":"ETH","name":"Ethereum","priceUsd":"3000","changePercent24Hr":null,"volumeUsd24Hr":"","marketCapUsd":null}
		],"timestamp":1700000000000}`))
	})

	records, err := client.FetchBulk(context.Background(), []string{"bitcoin", "ethereum"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	btc := records[0]
	require.NotNil(t, btc.Price)
	assert.Equal(t, 50000.12, *btc.Price)
	require.NotNil(t, btc.ChangePercent24h)
	assert.Equal(t, -1.25, *btc.ChangePercent24h)
	require.NotNil(t, btc.Volume)
	assert.Equal(t, 123.5, *btc.Volume)

	eth := records[1]
	require.NotNil(t, eth.Price)
	assert.Equal(t, 3000.0, *eth.Price)
	assert.Nil(t, eth.ChangePercent24h)
	assert.Nil(t, eth.Volume)
	assert.Nil(t, eth.MarketCap)
}

func TestCoinCapMissingDataIsTransient(t *testing.T) {
	client := newTestCoinCap(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"timestamp":1700000000000}`))
	})

	_, err := client.FetchBulk(context.Background(), []string{"bitcoin"})
	assert.True(t, errors.Is(err, domain.ErrTransient))
}

func TestCoinCapRateLimited(t *testing.T) {
	client := newTestCoinCap(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	})

	_, err := client.FetchBulk(context.Background(), []string{"bitcoin"})
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
}
