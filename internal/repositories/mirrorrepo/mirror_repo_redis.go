package mirrorrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

type RedisOptions struct {
	KeyPrefix        string
	HistoryRetention time.Duration
}

// redisMirror keeps each current record as a JSON string, an index of symbols
// scored by fetch time, and a per-symbol sorted set of history points.
type redisMirror struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewRedisMirror(client redis.UniversalClient, opts RedisOptions, logger zerolog.Logger) IMirrorRepository {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "pricefeed"
	}
	return &redisMirror{
		client:    client,
		prefix:    prefix,
		retention: opts.HistoryRetention,
		now:       time.Now,
		logger:    logger.With().Str("component", "redis_mirror").Logger(),
	}
}

func (m *redisMirror) Name() string { return "redis" }

func (m *redisMirror) currentKey(symbol string) string {
	return m.prefix + ":" + currentCollection + ":" + symbol
}

func (m *redisMirror) indexKey() string {
	return m.prefix + ":" + currentCollection
}

func (m *redisMirror) historyKey(symbol string) string {
	return m.prefix + ":" + historicalCollection + ":" + symbol
}

func (m *redisMirror) SaveCurrent(ctx context.Context, records []domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", rec.Symbol, err)
			}
			point, err := json.Marshal(rec.Point())
			if err != nil {
				return fmt.Errorf("encoding %s history point: %w", rec.Symbol, err)
			}
			score := float64(rec.FetchedAt.UnixMilli())

			pipe.Set(ctx, m.currentKey(rec.Symbol), data, 0)
			pipe.ZAdd(ctx, m.indexKey(), redis.Z{Score: score, Member: rec.Symbol})
			pipe.ZAdd(ctx, m.historyKey(rec.Symbol), redis.Z{Score: score, Member: point})
			if m.retention > 0 {
				cutoff := m.now().Add(-m.retention).UnixMilli()
				pipe.ZRemRangeByScore(ctx, m.historyKey(rec.Symbol), "-inf", "("+strconv.FormatInt(cutoff, 10))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving %d records to redis: %w", len(records), err)
	}
	return nil
}

func (m *redisMirror) RecentCurrent(ctx context.Context, since time.Time, symbols []string) ([]domain.PriceRecord, error) {
	members, err := m.client.ZRangeByScore(ctx, m.indexKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading redis price index: %w", err)
	}

	wanted := symbolSet(symbols)
	keys := make([]string, 0, len(members))
	for _, symbol := range members {
		if wanted != nil && !wanted[symbol] {
			continue
		}
		keys = append(keys, m.currentKey(symbol))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading redis current prices: %w", err)
	}

	records := make([]domain.PriceRecord, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.PriceRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			m.logger.Warn().Err(err).Str("key", keys[i]).Msg("Skipping undecodable mirror record")
			continue
		}
		if rec.FetchedAt.Before(since) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (m *redisMirror) FindCurrent(ctx context.Context, symbol string, since time.Time) (*domain.PriceRecord, error) {
	data, err := m.client.Get(ctx, m.currentKey(strings.ToUpper(symbol))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading redis price for %s: %w", symbol, err)
	}

	var rec domain.PriceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding redis price for %s: %w", symbol, err)
	}
	if rec.FetchedAt.Before(since) {
		return nil, nil
	}
	return &rec, nil
}

func (m *redisMirror) History(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error) {
	opt := &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	members, err := m.client.ZRevRangeByScore(ctx, m.historyKey(strings.ToUpper(symbol)), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("reading redis history for %s: %w", symbol, err)
	}

	points := make([]domain.PricePoint, 0, len(members))
	for _, member := range members {
		var p domain.PricePoint
		if err := json.Unmarshal([]byte(member), &p); err != nil {
			m.logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping undecodable history point")
			continue
		}
		points = append(points, p)
	}
	slices.Reverse(points)
	return points, nil
}

func (m *redisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func symbolSet(symbols []string) map[string]bool {
	if len(symbols) == 0 {
		return nil
	}
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = true
	}
	return set
}
