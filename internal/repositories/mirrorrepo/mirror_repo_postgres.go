package mirrorrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/internal/infrastructure/database"
)

const (
	createCurrentTable = `
		CREATE TABLE IF NOT EXISTS current_prices (
			symbol             TEXT PRIMARY KEY,
			provider_id        TEXT NOT NULL,
			name               TEXT NOT NULL,
			price              DOUBLE PRECISION NOT NULL,
			change_percent_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume             DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap         DOUBLE PRECISION NOT NULL DEFAULT 0,
			fetched_at         TIMESTAMPTZ NOT NULL
		)`

	createHistoryTable = `
		CREATE TABLE IF NOT EXISTS historical_prices (
			id                 BIGSERIAL PRIMARY KEY,
			symbol             TEXT NOT NULL,
			price              DOUBLE PRECISION NOT NULL,
			change_percent_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume             DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap         DOUBLE PRECISION NOT NULL DEFAULT 0,
			fetched_at         TIMESTAMPTZ NOT NULL
		)`

	createHistoryIndex = `
		CREATE INDEX IF NOT EXISTS idx_historical_prices_symbol_fetched_at
		ON historical_prices (symbol, fetched_at DESC)`

	upsertCurrentQuery = `
		INSERT INTO current_prices (symbol, provider_id, name, price, change_percent_24h, volume, market_cap, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			change_percent_24h = EXCLUDED.change_percent_24h,
			volume = EXCLUDED.volume,
			market_cap = EXCLUDED.market_cap,
			fetched_at = EXCLUDED.fetched_at`

	insertHistoryQuery = `
		INSERT INTO historical_prices (symbol, price, change_percent_24h, volume, market_cap, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	pruneHistoryQuery = `DELETE FROM historical_prices WHERE fetched_at < $1`

	selectCurrentColumns = `
		SELECT symbol, provider_id, name, price, change_percent_24h, volume, market_cap, fetched_at
		FROM current_prices`

	selectHistoryQuery = `
		SELECT symbol, price, change_percent_24h, volume, market_cap, fetched_at
		FROM historical_prices
		WHERE symbol = $1 AND fetched_at >= $2
		ORDER BY fetched_at DESC`
)

type PostgresMirror struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewPostgresMirror(db *database.DBManager, historyRetention time.Duration, logger zerolog.Logger) *PostgresMirror {
	return &PostgresMirror{
		db:        db.Db,
		retention: historyRetention,
		now:       time.Now,
		logger:    logger.With().Str("component", "postgres_mirror").Logger(),
	}
}

func (m *PostgresMirror) Name() string { return "postgres" }

// Migrate creates the mirror tables when they do not exist.
func (m *PostgresMirror) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createCurrentTable, createHistoryTable, createHistoryIndex} {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating price mirror: %w", err)
		}
	}
	return nil
}

func (m *PostgresMirror) SaveCurrent(ctx context.Context, records []domain.PriceRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning mirror transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				m.logger.Error().Err(rbErr).Msg("Failed to roll back mirror transaction")
			}
		}
	}()

	upsert, err := tx.PrepareContext(ctx, upsertCurrentQuery)
	if err != nil {
		return fmt.Errorf("preparing current upsert: %w", err)
	}
	defer upsert.Close()

	insert, err := tx.PrepareContext(ctx, insertHistoryQuery)
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	defer insert.Close()

	for _, rec := range records {
		fetchedAt := rec.FetchedAt.UTC()
		if _, err = upsert.ExecContext(ctx,
			rec.Symbol, rec.ProviderID, rec.DisplayName, rec.Price,
			rec.ChangePercent24h, rec.Volume, rec.MarketCap, fetchedAt,
		); err != nil {
			return fmt.Errorf("upserting %s: %w", rec.Symbol, err)
		}
		if _, err = insert.ExecContext(ctx,
			rec.Symbol, rec.Price, rec.ChangePercent24h, rec.Volume, rec.MarketCap, fetchedAt,
		); err != nil {
			return fmt.Errorf("appending %s history: %w", rec.Symbol, err)
		}
	}

	if m.retention > 0 {
		if _, err = tx.ExecContext(ctx, pruneHistoryQuery, m.now().Add(-m.retention).UTC()); err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		m.logger.Error().Err(err).Int("records", len(records)).Msg("Failed to commit mirror transaction")
		return fmt.Errorf("failed to commit mirror transaction: %w", err)
	}
	return nil
}

func (m *PostgresMirror) RecentCurrent(ctx context.Context, since time.Time, symbols []string) ([]domain.PriceRecord, error) {
	query := selectCurrentColumns + ` WHERE fetched_at >= $1`
	args := []interface{}{since.UTC()}
	if len(symbols) > 0 {
		query += ` AND symbol = ANY($2)`
		args = append(args, pq.Array(upper(symbols)))
	}
	query += ` ORDER BY symbol`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		m.logger.Error().Err(err).Time("since", since).Msg("Failed to query current prices")
		return nil, fmt.Errorf("failed to query current prices: %w", err)
	}
	defer rows.Close()

	var records []domain.PriceRecord
	for rows.Next() {
		rec, err := scanCurrent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating current prices: %w", err)
	}
	return records, nil
}

func (m *PostgresMirror) FindCurrent(ctx context.Context, symbol string, since time.Time) (*domain.PriceRecord, error) {
	row := m.db.QueryRowContext(ctx,
		selectCurrentColumns+` WHERE symbol = $1 AND fetched_at >= $2`,
		strings.ToUpper(symbol), since.UTC(),
	)

	rec, err := scanCurrent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		m.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to get current price")
		return nil, err
	}
	return &rec, nil
}

func (m *PostgresMirror) History(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error) {
	query := selectHistoryQuery
	args := []interface{}{strings.ToUpper(symbol), since.UTC()}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Symbol, &p.Price, &p.ChangePercent24h, &p.Volume, &p.MarketCap, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history for %s: %w", symbol, err)
	}
	slices.Reverse(points)
	return points, nil
}

func (m *PostgresMirror) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCurrent(row rowScanner) (domain.PriceRecord, error) {
	var rec domain.PriceRecord
	err := row.Scan(
		&rec.Symbol, &rec.ProviderID, &rec.DisplayName, &rec.Price,
		&rec.ChangePercent24h, &rec.Volume, &rec.MarketCap, &rec.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scanning current price: %w", err)
	}
	return rec, nil
}
