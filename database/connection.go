package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	pingAttempts = 3
	queryTimeout = 5 * time.Second

	// width of payment_transactions.description
	maxDescriptionLength = 255
)

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	DBName   string
}

// DSN renders the config for the MySQL driver.
func (c DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

type Connection struct {
	db    *sql.DB
	audit *security.AuditLogger
}

func NewConnection(config DatabaseConfig, audit *security.AuditLogger) (*Connection, error) {
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	conn := newConnection(db, audit)
	if err := conn.ensureConnection(); err != nil {
		db.Close()
		return nil, err
	}
	return conn, nil
}

func newConnection(db *sql.DB, audit *security.AuditLogger) *Connection {
	if audit == nil {
		audit = security.NewAuditLogger(nil)
	}
	return &Connection{db: db, audit: audit}
}

func (c *Connection) ensureConnection() error {
	for retries := 0; retries < pingAttempts; retries++ {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err := c.db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		c.audit.Warn("database ping failed", map[string]any{"attempt": retries + 1, "error": err})
		time.Sleep(time.Second * time.Duration(retries+1))
	}
	return fmt.Errorf("failed to establish database connection after %d attempts", pingAttempts)
}

// Migrate applies the embedded schema migrations.
func (c *Connection) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, c.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordTransaction stores a masked ledger row. Recording the same
// transaction twice is a no-op, so queue retries are safe.
func (c *Connection) RecordTransaction(ctx context.Context, entry models.LedgerEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (
			id, transaction_id, masked_number, last_four, brand,
			amount, currency, description, three_d_secure,
			three_ds_transaction_id, charged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE transaction_id = transaction_id`,
		uuid.New().String(),
		entry.TransactionID,
		entry.MaskedNumber,
		entry.LastFour,
		string(entry.Brand),
		utils.FormatAmount(entry.Amount),
		entry.Currency,
		nullString(utils.Truncate(security.RedactPANs(entry.Description), maxDescriptionLength)),
		entry.ThreeDSecure,
		nullString(entry.ThreeDSTransactionID),
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (c *Connection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Connection) Close() error {
	return c.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
