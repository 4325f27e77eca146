package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

var db *sql.DB

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "dia_platform")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}

// InitDB initializes the database connection
func InitDB() (*sql.DB, error) {
	config := GetConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode,
	)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	log.Println("Database connection established")
	return db, nil
}

// Migrate creates the ledger schema. The unique constraints here back the
// accounting invariants: purchase_records (reader_id, content_id) guards
// against double charges, the partial index on withdrawal_requests enforces
// at most one pending request per author, topups.reference makes external
// confirmations idempotent, and the balance checks keep every bucket
// non-negative.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			owner_id BIGINT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS revenue_accounts (
			author_id BIGINT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			pending BIGINT NOT NULL DEFAULT 0 CHECK (pending >= 0),
			withdrawn BIGINT NOT NULL DEFAULT 0 CHECK (withdrawn >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			account_type TEXT NOT NULL,
			amount_delta BIGINT NOT NULL,
			kind TEXT NOT NULL,
			reference_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_owner
			ON ledger_entries (owner_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS purchase_records (
			id BIGSERIAL PRIMARY KEY,
			reader_id BIGINT NOT NULL,
			content_id BIGINT NOT NULL,
			price_dias BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (reader_id, content_id)
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
			id UUID PRIMARY KEY,
			author_id BIGINT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			status TEXT NOT NULL,
			bank_details TEXT NOT NULL,
			decided_by BIGINT,
			decision_note TEXT,
			decided_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_withdrawals_one_pending
			ON withdrawal_requests (author_id) WHERE status = 'PENDING'`,
		`CREATE TABLE IF NOT EXISTS voice_orders (
			id BIGSERIAL PRIMARY KEY,
			chapter_id BIGINT NOT NULL,
			voice_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			generation_cost_dias BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (chapter_id, voice_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pricing_rules (
			id BIGSERIAL PRIMARY KEY,
			table_name TEXT NOT NULL,
			min_measure INT NOT NULL,
			max_measure INT,
			price_dias BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS topups (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount_dias BIGINT NOT NULL CHECK (amount_dias > 0),
			reference TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id BIGSERIAL PRIMARY KEY,
			recipient_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			payload JSONB,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// InitDatabase initializes database with error handling
func InitDatabase() *sql.DB {
	db, err := InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}
