package erp

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DemoAdapter is an in-memory back-end seeded with a small coffee-shop
// catalog. Mutations only affect this instance.
type DemoAdapter struct {
	mu        sync.RWMutex
	products  []Product
	documents map[string]*Document
	seq       int
	now       func() time.Time
}

// NewDemoAdapter returns a freshly seeded demo back-end.
func NewDemoAdapter() *DemoAdapter {
	seeded := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	return &DemoAdapter{
		products: []Product{
			{ID: "prod-1", Name: "Coffee Arabica 1kg", SKU: "COFFEE-001", Price: 1200, Quantity: 150, Unit: "pcs"},
			{ID: "prod-2", Name: "Milk 1L", SKU: "MILK-001", Price: 90, Quantity: 80, Unit: "pcs"},
			{ID: "prod-3", Name: "Delivery Service", SKU: "DELIVERY", Price: 500, Unit: "service", IsService: true},
			{ID: "prod-4", Name: "Sugar 1kg", SKU: "SUGAR-001", Price: 70, Quantity: 200, Unit: "pcs"},
			{ID: "prod-5", Name: "Chocolate Cookies", SKU: "COOKIE-001", Price: 150, Quantity: 45, Unit: "pack"},
		},
		documents: map[string]*Document{
			"doc-123": {ID: "doc-123", Type: DocumentTypeInvoice, Number: "INV-000123", Date: seeded, CustomerName: "Cafe Aroma", Total: 12000, Status: "posted"},
			"doc-456": {ID: "doc-456", Type: DocumentTypeInvoice, Number: "INV-000456", Date: seeded, CustomerName: "Bakery Plus", Total: 1800, Status: StatusDraft},
			"doc-789": {ID: "doc-789", Type: "Waybill", Number: "WB-000789", Date: seeded, Status: "posted"},
		},
		seq: 1000,
		now: time.Now,
	}
}

func (a *DemoAdapter) Ping(ctx context.Context) error { return ctx.Err() }

func (a *DemoAdapter) GetStock(ctx context.Context, productName string) ([]StockItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []StockItem
	for _, p := range a.products {
		if p.IsService {
			continue
		}
		if productName != "" && !containsFold(p.Name, productName) {
			continue
		}
		out = append(out, StockItem{ID: p.ID, Name: p.Name, SKU: p.SKU, Quantity: p.Quantity, Unit: p.Unit})
	}
	return out, nil
}

func (a *DemoAdapter) GetProducts(ctx context.Context, filter Filter) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []Product
	for _, p := range a.products {
		if filter.ID != "" && p.ID != filter.ID {
			continue
		}
		if filter.Name != "" && !containsFold(p.Name, filter.Name) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (a *DemoAdapter) GetDocument(ctx context.Context, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	doc, ok := a.documents[id]
	if !ok {
		return nil, fmt.Errorf("GetDocument %s: %w", id, ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (a *DemoAdapter) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("CreateInvoice: no items")
	}

	items, total := invoiceItems(req.Items)
	customer := req.CustomerName
	if customer == "" {
		customer = "Customer"
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	inv := &Invoice{
		ID:           "inv-" + uuid.NewString(),
		Number:       fmt.Sprintf("INV-%06d", a.seq),
		Date:         a.now().UTC(),
		CustomerName: customer,
		Items:        items,
		Total:        total,
		Status:       StatusDraft,
		Comment:      req.Comment,
	}
	a.documents[inv.ID] = &Document{
		ID:           inv.ID,
		Type:         DocumentTypeInvoice,
		Number:       inv.Number,
		Date:         inv.Date,
		CustomerName: inv.CustomerName,
		Total:        inv.Total,
		Status:       inv.Status,
	}
	return inv, nil
}

func (a *DemoAdapter) UpdateProduct(ctx context.Context, upd ProductUpdate) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	i := slices.IndexFunc(a.products, func(p Product) bool { return p.ID == upd.ID })
	if i < 0 {
		return nil, fmt.Errorf("UpdateProduct %s: %w", upd.ID, ErrNotFound)
	}
	p := &a.products[i]
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.SKU != nil {
		p.SKU = *upd.SKU
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Quantity != nil {
		p.Quantity = *upd.Quantity
	}
	if upd.Unit != nil {
		p.Unit = *upd.Unit
	}
	cp := *p
	return &cp, nil
}

func (a *DemoAdapter) DeleteDocument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.documents[id]; !ok {
		return fmt.Errorf("DeleteDocument %s: %w", id, ErrNotFound)
	}
	delete(a.documents, id)
	return nil
}

var _ Adapter = (*DemoAdapter)(nil)
