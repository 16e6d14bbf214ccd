package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/riskibarqy/match-odds-engine/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	_ "modernc.org/sqlite"
)

// openDB opens the match store through otelsqlx so every statement is traced.
func openDB(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	if cfg.DBDriver == config.DBDriverSQLite {
		if dir := filepath.Dir(cfg.DBURL); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	db, err := otelsqlx.Open(cfg.DBDriver, driverDSN(cfg.DBDriver, cfg.DBURL),
		otelsql.WithDBSystem(dbSystem(cfg.DBDriver)),
		otelsql.WithDBName(dbNameFromURL(cfg.DBDriver, cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	if cfg.DBDriver == config.DBDriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	return db, nil
}

func dbSystem(driver string) string {
	if driver == config.DBDriverSQLite {
		return "sqlite"
	}
	return "postgresql"
}
