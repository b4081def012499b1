package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/kmassidik/engagement/internal/common/logger"
	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
	logger *logger.Logger
}

// Connect opens a pooled PostgreSQL connection and verifies it with a ping
func Connect(cfg config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infof("Connected to PostgreSQL %s:%s/%s", cfg.Host, cfg.Port, cfg.DBName)
	return &DB{DB: sqlDB, logger: log}, nil
}

// Health pings the database
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// WithTransaction runs fn inside a transaction. It commits when fn returns
// nil and rolls back otherwise, including on panic.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Errorf("Rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the pool and logs the outcome
func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		db.logger.Errorf("Error closing database connection: %v", err)
		return err
	}
	db.logger.Info("Database connection closed")
	return nil
}
