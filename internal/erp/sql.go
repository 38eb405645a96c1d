package erp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema creates the tables SQLAdapter reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	sku        TEXT NOT NULL DEFAULT '',
	price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	quantity   DOUBLE PRECISION NOT NULL DEFAULT 0,
	unit       TEXT NOT NULL DEFAULT 'pcs',
	is_service BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	doc_type      TEXT NOT NULL,
	number        TEXT NOT NULL,
	doc_date      TIMESTAMPTZ NOT NULL DEFAULT now(),
	customer_name TEXT NOT NULL DEFAULT '',
	total         DOUBLE PRECISION NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'draft',
	comment       TEXT NOT NULL DEFAULT '',
	items         JSONB NOT NULL DEFAULT '[]'
);
CREATE SEQUENCE IF NOT EXISTS invoice_number_seq START 1000;
`

// OpenPostgres opens a pooled connection through the pgx stdlib driver and
// pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenPostgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("OpenPostgres: ping: %w", err)
	}
	return db, nil
}

// SQLAdapter is a Postgres-backed ERP.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter wraps an open database. The caller owns db.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// Migrate creates the schema if it does not exist.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (a *SQLAdapter) Close() error { return a.db.Close() }

func (a *SQLAdapter) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

func (a *SQLAdapter) GetStock(ctx context.Context, productName string) ([]StockItem, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, sku, quantity, unit
		FROM products
		WHERE NOT is_service
		  AND ($1::text = '' OR name ILIKE '%' || $1::text || '%')
		ORDER BY id
	`, productName)
	if err != nil {
		return nil, fmt.Errorf("GetStock: %w", err)
	}
	defer rows.Close()

	var out []StockItem
	for rows.Next() {
		var s StockItem
		if err := rows.Scan(&s.ID, &s.Name, &s.SKU, &s.Quantity, &s.Unit); err != nil {
			return nil, fmt.Errorf("GetStock: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) GetProducts(ctx context.Context, filter Filter) ([]Product, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, sku, price, quantity, unit, is_service
		FROM products
		WHERE ($1::text = '' OR id = $1::text)
		  AND ($2::text = '' OR name ILIKE '%' || $2::text || '%')
		ORDER BY id
	`, filter.ID, filter.Name)
	if err != nil {
		return nil, fmt.Errorf("GetProducts: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Quantity, &p.Unit, &p.IsService); err != nil {
			return nil, fmt.Errorf("GetProducts: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, doc_type, number, doc_date, customer_name, total, status
		FROM documents
		WHERE id = $1
	`, id)

	var d Document
	if err := row.Scan(&d.ID, &d.Type, &d.Number, &d.Date, &d.CustomerName, &d.Total, &d.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetDocument %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("GetDocument: %w", err)
	}
	return &d, nil
}

func (a *SQLAdapter) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("CreateInvoice: no items")
	}
	items, total := invoiceItems(req.Items)
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}
	customer := req.CustomerName
	if customer == "" {
		customer = "Customer"
	}

	inv := &Invoice{
		ID:           "inv-" + uuid.NewString(),
		CustomerName: customer,
		Items:        items,
		Total:        total,
		Status:       StatusDraft,
		Comment:      req.Comment,
	}
	row := a.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, doc_type, number, customer_name, total, status, comment, items)
		VALUES ($1, $2, 'INV-' || lpad(nextval('invoice_number_seq')::text, 6, '0'), $3, $4, $5, $6, $7)
		RETURNING number, doc_date
	`, inv.ID, DocumentTypeInvoice, inv.CustomerName, inv.Total, inv.Status, inv.Comment, string(itemsJSON))
	if err := row.Scan(&inv.Number, &inv.Date); err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}
	return inv, nil
}

func (a *SQLAdapter) UpdateProduct(ctx context.Context, upd ProductUpdate) (*Product, error) {
	row := a.db.QueryRowContext(ctx, `
		UPDATE products SET
			name     = COALESCE($2, name),
			sku      = COALESCE($3, sku),
			price    = COALESCE($4, price),
			quantity = COALESCE($5, quantity),
			unit     = COALESCE($6, unit)
		WHERE id = $1
		RETURNING id, name, sku, price, quantity, unit, is_service
	`, upd.ID, nullString(upd.Name), nullString(upd.SKU), nullFloat(upd.Price), nullFloat(upd.Quantity), nullString(upd.Unit))

	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Quantity, &p.Unit, &p.IsService); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("UpdateProduct %s: %w", upd.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("UpdateProduct: %w", err)
	}
	return &p, nil
}

func (a *SQLAdapter) DeleteDocument(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteDocument: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteDocument: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("DeleteDocument %s: %w", id, ErrNotFound)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

var _ Adapter = (*SQLAdapter)(nil)
