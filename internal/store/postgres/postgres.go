// Package postgres implements the internal/store repository contracts on
// top of PostgreSQL with the pgvector extension for embedding search.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/faceguard/internal/store"
)

// Config configures the connection pool. It mirrors the discrete fields
// of config.DatabaseConfig, which cmd/gateway copies across; it has no URL
// field, so config.DatabaseConfig.URL (DATABASE_URL) is not applied.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	MaxConns int
}

func (c Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Store bundles all repository implementations over one connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies reachability.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying connection pool for components that need
// to run queries the repository interfaces don't cover, such as
// internal/index/pgann's direct pgvector search.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Identities returns the IdentityRepo view of this store.
func (s *Store) Identities() store.IdentityRepo { return identityRepo{s.pool} }

// Sightings returns the SightingRepo view of this store.
func (s *Store) Sightings() store.SightingRepo { return sightingRepo{s.pool} }

// Cameras returns the CameraRepo view of this store.
func (s *Store) Cameras() store.CameraRepo { return cameraRepo{s.pool} }

// Recordings returns the RecordingRepo view of this store.
func (s *Store) Recordings() store.RecordingRepo { return recordingRepo{s.pool} }

// Settings returns the SettingsRepo view of this store.
func (s *Store) Settings() store.SettingsRepo { return settingsRepo{s.pool} }

// classify maps a raw pgx/pgconn error into the store package's error
// taxonomy so callers above internal/store never see a *pgconn.PgError
// directly.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &store.Conflict{Kind: op, Reason: pgErr.Message}
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return &store.Transient{Op: op, Err: err}
		}
		return &store.Fatal{Op: op, Err: err}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &store.Transient{Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &store.Transient{Op: op, Err: err}
	}
	return &store.Fatal{Op: op, Err: err}
}
