// Package database provides PostgreSQL persistence for the fund
// administration backend: structures, waterfall tiers, investor positions,
// distributions, cumulative tier state and allocation lines.
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
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

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations. Monetary columns are BIGINT
// minimal currency units; percentage columns are DECIMAL, never float.
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS structures (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(200) NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'USD',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS waterfall_tiers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			structure_id UUID NOT NULL REFERENCES structures(id) ON DELETE CASCADE,
			tier_number INTEGER NOT NULL,
			tier_type VARCHAR(30) NOT NULL,
			lp_share_percent DECIMAL(8, 4) NOT NULL,
			gp_share_percent DECIMAL(8, 4) NOT NULL,
			threshold_amount BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (structure_id, tier_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_waterfall_tiers_structure ON waterfall_tiers(structure_id)`,

		`CREATE TABLE IF NOT EXISTS investor_positions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			structure_id UUID NOT NULL REFERENCES structures(id) ON DELETE CASCADE,
			investor_id VARCHAR(100) NOT NULL,
			weight DECIMAL(9, 4) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (structure_id, investor_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_investor_positions_structure ON investor_positions(structure_id)`,

		`CREATE TABLE IF NOT EXISTS distributions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			structure_id UUID NOT NULL REFERENCES structures(id) ON DELETE CASCADE,
			total_amount BIGINT NOT NULL CHECK (total_amount > 0),
			status VARCHAR(30) NOT NULL DEFAULT 'DRAFT',
			waterfall_applied BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_distributions_structure ON distributions(structure_id)`,
		`CREATE INDEX IF NOT EXISTS idx_distributions_status ON distributions(status)`,

		`CREATE TABLE IF NOT EXISTS tier_cumulative_state (
			structure_id UUID NOT NULL REFERENCES structures(id) ON DELETE CASCADE,
			tier_number INTEGER NOT NULL,
			amount_allocated BIGINT NOT NULL DEFAULT 0 CHECK (amount_allocated >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (structure_id, tier_number)
		)`,

		`CREATE TABLE IF NOT EXISTS distribution_allocations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			distribution_id UUID NOT NULL REFERENCES distributions(id) ON DELETE CASCADE,
			tier_number INTEGER NOT NULL,
			investor_id VARCHAR(100) NOT NULL,
			amount BIGINT NOT NULL,
			is_gp BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (distribution_id, tier_number, investor_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_distribution ON distribution_allocations(distribution_id)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_investor ON distribution_allocations(investor_id)`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(200) NOT NULL,
			role VARCHAR(30) NOT NULL DEFAULT 'investor',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login_at TIMESTAMPTZ
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
