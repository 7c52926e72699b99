// Package persistence implements the durable state boundary spec.md §6
// names (calibrator_state, paper_trading_state, daily_summaries): a
// key-value Store interface with a Postgres (pgx) implementation and a
// Redis (go-redis) hot cache layered in front of it, mirroring the
// teacher's cache-in-front-of-Postgres split between
// internal/cache/cache_service.go and internal/database/db.go.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"polybot/internal/logging"
)

// Keyspaces, mirroring the three named persisted-state concerns.
const (
	KeyCalibratorState   = "calibrator_state"
	KeyPaperTradingState = "paper_trading_state"
	KeyDailySummaries    = "daily_summaries"
)

// Store is the narrow persistence boundary every consumer depends on.
type Store interface {
	Put(ctx context.Context, keyspace, key string, value interface{}) error
	Get(ctx context.Context, keyspace, key string, dest interface{}) (bool, error)
}

// PostgresStore persists state as JSONB blobs in a single
// keyspace/key/value table, grounded on the teacher's
// internal/database/db.go connection-pool setup.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// Config mirrors the teacher's database.Config field-for-field.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgresStore opens a connection pool and ensures the backing
// table exists.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse dsn: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("persistence: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, log: logging.WithComponent("persistence")}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv_state (
			keyspace   TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (keyspace, key)
		)`)
	return err
}

// Put upserts value, JSON-encoded, under (keyspace, key).
func (s *PostgresStore) Put(ctx context.Context, keyspace, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("persistence: marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kv_state (keyspace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (keyspace, key) DO UPDATE SET value = $3, updated_at = now()`,
		keyspace, key, payload)
	return err
}

// Get decodes the stored value into dest, returning (false, nil) if
// absent.
func (s *PostgresStore) Get(ctx context.Context, keyspace, key string, dest interface{}) (bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM kv_state WHERE keyspace = $1 AND key = $2`, keyspace, key).Scan(&payload)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("persistence: unmarshal: %w", err)
	}
	return true, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
