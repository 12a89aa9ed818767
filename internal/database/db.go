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

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// API users
		`CREATE TABLE IF NOT EXISTS api_users (
			id UUID PRIMARY KEY,
			username VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(100) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Predictions
		`CREATE TABLE IF NOT EXISTS predictions (
			id SERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES api_users(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			strategy_type VARCHAR(50) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8) NOT NULL,
			take_profits JSONB NOT NULL,
			signals JSONB,
			confidence DECIMAL(5, 4),
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			outcome VARCHAR(20),
			accuracy_score DECIMAL(6, 2),
			rr_achieved DECIMAL(10, 4),
			mfe DECIMAL(20, 8),
			mae DECIMAL(20, 8),
			entry_time TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_strategy ON predictions(user_id, strategy_type)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_symbol ON predictions(symbol)`,

		// Evaluation passes
		`CREATE TABLE IF NOT EXISTS prediction_evaluations (
			id SERIAL PRIMARY KEY,
			prediction_id INTEGER NOT NULL REFERENCES predictions(id) ON DELETE CASCADE,
			outcome VARCHAR(20),
			price_at_eval DECIMAL(20, 8) NOT NULL DEFAULT 0,
			rr_achieved DECIMAL(10, 4) NOT NULL DEFAULT 0,
			mfe DECIMAL(20, 8) NOT NULL DEFAULT 0,
			mae DECIMAL(20, 8) NOT NULL DEFAULT 0,
			accuracy_score DECIMAL(6, 2) NOT NULL DEFAULT 0,
			direction_score DECIMAL(6, 2) NOT NULL DEFAULT 0,
			entry_score DECIMAL(6, 2) NOT NULL DEFAULT 0,
			rr_score DECIMAL(6, 2) NOT NULL DEFAULT 0,
			timing_score DECIMAL(6, 2) NOT NULL DEFAULT 0,
			bars_to_resolve INTEGER,
			evaluated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_prediction ON prediction_evaluations(prediction_id)`,

		// Global insights
		`CREATE TABLE IF NOT EXISTS global_insights (
			id SERIAL PRIMARY KEY,
			type VARCHAR(50) NOT NULL,
			source_strategy VARCHAR(50),
			message TEXT NOT NULL,
			confidence DECIMAL(5, 4) NOT NULL,
			evidence_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_type ON global_insights(type, source_strategy)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
