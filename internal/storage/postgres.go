package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/call-scanner/internal/config"
	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/types"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the registry as one row per address in the
// call_records table. Save replaces the whole table inside a transaction, so
// readers either see the previous snapshot or the new one, never a mix.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewPostgresStore creates a Postgres-backed snapshot store and verifies the
// connection.
func NewPostgresStore(cfg *config.PostgresConfig, logger *logging.Logger) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.MaxConnections,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is validated in config
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Save replaces the persisted mapping in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, records map[string]*types.CallRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("save", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM call_records`); err != nil {
		return apperrors.NewPersistenceError("save", err)
	}

	for address, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return apperrors.NewPersistenceError("save", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO call_records (address, record, saved_at) VALUES ($1, $2, NOW())`,
			address, payload,
		); err != nil {
			return apperrors.NewPersistenceError("save", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewPersistenceError("save", err)
	}

	return nil
}

// Load reads the full persisted mapping. Rows that fail to decode are logged
// and skipped rather than failing the whole load.
func (s *PostgresStore) Load(ctx context.Context) (map[string]*types.CallRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, record FROM call_records`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load", err)
	}
	defer rows.Close()

	records := make(map[string]*types.CallRecord)

	for rows.Next() {
		var address string
		var payload []byte
		if err := rows.Scan(&address, &payload); err != nil {
			return nil, apperrors.NewPersistenceError("load", err)
		}

		var record types.CallRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			s.logger.WithError(err).WithField("address", address).Error("Skipping corrupt call record row")
			continue
		}

		records[address] = &record
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("load", err)
	}

	return records, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks if the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
