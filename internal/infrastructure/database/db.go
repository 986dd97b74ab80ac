package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tuncanbit/pricefeed/pkg/config"
	"github.com/tuncanbit/pricefeed/pkg/db"
)

type DBManager struct {
	Db *sql.DB
}

// New opens a postgres pool from rawURL, or from cfg when rawURL is empty,
// and verifies it with a ping bounded by ctx.
func New(ctx context.Context, rawURL string, cfg *config.DatabaseConfig) (*DBManager, error) {
	DBDSN := db.GetDBDSN(rawURL, cfg)
	Db, err := sql.Open("postgres", DBDSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		Db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		Db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			Db.Close()
			return nil, fmt.Errorf("invalid database.conn_max_lifetime: %w", err)
		}
		Db.SetConnMaxLifetime(lifetime)
	}

	if err := Db.PingContext(ctx); err != nil {
		Db.Close()
		return nil, err
	}

	return &DBManager{
		Db: Db,
	}, nil
}

func (dm *DBManager) ShutDown() {
	if dm.Db != nil {
		dm.Db.Close()
	}
}
