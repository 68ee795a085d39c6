package ledger

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"tradepost/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Ledger is an append-only record of executed trades and claims. The engine never reads it back.
type Ledger struct {
	db  *sqlx.DB
	now func() time.Time
}

// New connects to the ledger database and applies the schema.
// driver is "postgres" or "sqlite".
func New(driver, databaseURL string) (*Ledger, error) {
	var schema string
	switch driver {
	case "postgres":
		schema = postgresSchema
	case "sqlite":
		schema = sqliteSchema
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %s", driver)
	}

	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// a single connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping checks the database connection
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// AppendTrades records the executed steps of one trade in a single transaction
func (l *Ledger) AppendTrades(ctx context.Context, records []models.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO trades (reference, store_id, listing_id, kind, holder, currency, count, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	created := l.now().Unix()
	for i := range records {
		r := &records[i]
		r.CreatedAt = created
		if _, err := tx.ExecContext(ctx, query,
			r.Reference, r.StoreID, r.ListingID, r.Kind, r.Holder, r.Currency, r.Count, r.Amount, r.CreatedAt); err != nil {
			return fmt.Errorf("failed to append trade %s/%s: %w", r.StoreID, r.ListingID, err)
		}
	}

	return tx.Commit()
}

// AppendClaim records a successful contract claim. References are unique.
func (l *Ledger) AppendClaim(ctx context.Context, record *models.ClaimRecord) error {
	record.CreatedAt = l.now().Unix()
	query := l.db.Rebind(`
		INSERT INTO claims (reference, store_id, contract_id, holder, crate, rewards, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := l.db.ExecContext(ctx, query,
		record.Reference, record.StoreID, record.ContractID, record.Holder, record.Crate, record.Rewards, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append claim %s/%s: %w", record.StoreID, record.ContractID, err)
	}
	return nil
}

// TradesByStore returns the most recent trades of a store, newest first
func (l *Ledger) TradesByStore(ctx context.Context, storeID string, limit int) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	query := l.db.Rebind(`
		SELECT id, reference, store_id, listing_id, kind, holder, currency, count, amount, created_at
		FROM trades WHERE store_id = ? ORDER BY id DESC LIMIT ?`)
	err := l.db.SelectContext(ctx, &trades, query, storeID, limit)
	return trades, err
}

// TradesByReference returns every step recorded under one request reference in insertion order
func (l *Ledger) TradesByReference(ctx context.Context, reference string) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	query := l.db.Rebind(`
		SELECT id, reference, store_id, listing_id, kind, holder, currency, count, amount, created_at
		FROM trades WHERE reference = ? ORDER BY id`)
	err := l.db.SelectContext(ctx, &trades, query, reference)
	return trades, err
}

// ClaimsByStore returns the most recent claims of a store, newest first
func (l *Ledger) ClaimsByStore(ctx context.Context, storeID string, limit int) ([]models.ClaimRecord, error) {
	var claims []models.ClaimRecord
	query := l.db.Rebind(`
		SELECT id, reference, store_id, contract_id, holder, crate, rewards, created_at
		FROM claims WHERE store_id = ? ORDER BY id DESC LIMIT ?`)
	err := l.db.SelectContext(ctx, &claims, query, storeID, limit)
	return claims, err
}
