// Package erp holds the back-end adapters the ERP tools execute against.
package erp

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("erp: record not found")

// Adapter is an ERP back-end. Implementations must be safe for concurrent use.
type Adapter interface {
	// GetStock returns stock balances, filtered by a case-insensitive name
	// substring when productName is non-empty.
	GetStock(ctx context.Context, productName string) ([]StockItem, error)
	GetProducts(ctx context.Context, filter Filter) ([]Product, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	UpdateProduct(ctx context.Context, upd ProductUpdate) (*Product, error)
	DeleteDocument(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Catalog adapts an Adapter to the read-only product lookups used by
// semantic validation.
type Catalog struct {
	Adapter Adapter
}

// ProductExists reports whether a product with this id exists.
func (c Catalog) ProductExists(ctx context.Context, productID string) (bool, error) {
	products, err := c.Adapter.GetProducts(ctx, Filter{ID: productID})
	if err != nil {
		return false, err
	}
	return len(products) > 0, nil
}

// ProductNameKnown reports whether some product name contains name,
// ignoring case.
func (c Catalog) ProductNameKnown(ctx context.Context, name string) (bool, error) {
	products, err := c.Adapter.GetProducts(ctx, Filter{Name: name})
	if err != nil {
		return false, err
	}
	return len(products) > 0, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
