package erp

import "time"

// StockItem is a stock balance line.
type StockItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	SKU      string  `json:"sku"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Product is a catalog entry.
type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit"`
	IsService bool    `json:"is_service"`
}

// Filter narrows GetProducts. Empty fields match everything.
type Filter struct {
	ID   string
	Name string // case-insensitive substring
}

// InvoiceLine is one requested line of a new invoice.
type InvoiceLine struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
}

// CreateInvoiceRequest describes a sales document to create.
type CreateInvoiceRequest struct {
	CustomerName string        `json:"customer_name,omitempty"`
	Items        []InvoiceLine `json:"items"`
	Comment      string        `json:"comment,omitempty"`
}

// InvoiceItem is a stored invoice line.
type InvoiceItem struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
}

// Invoice is a created sales document.
type Invoice struct {
	ID           string        `json:"id"`
	Number       string        `json:"number"`
	Date         time.Time     `json:"date"`
	CustomerName string        `json:"customer_name"`
	Items        []InvoiceItem `json:"items"`
	Total        float64       `json:"total"`
	Status       string        `json:"status"`
	Comment      string        `json:"comment,omitempty"`
}

// ProductUpdate changes the non-nil fields of a product.
type ProductUpdate struct {
	ID       string
	Name     *string
	SKU      *string
	Price    *float64
	Quantity *float64
	Unit     *string
}

// Document is any stored ERP document (invoices included).
type Document struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Number       string    `json:"number"`
	Date         time.Time `json:"date"`
	CustomerName string    `json:"customer_name,omitempty"`
	Total        float64   `json:"total"`
	Status       string    `json:"status"`
}

const (
	DocumentTypeInvoice = "Invoice"
	StatusDraft         = "draft"
)

func invoiceItems(lines []InvoiceLine) ([]InvoiceItem, float64) {
	items := make([]InvoiceItem, len(lines))
	var total float64
	for i, l := range lines {
		amount := l.Quantity * l.Price
		items[i] = InvoiceItem{
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.Price,
			Amount:      amount,
		}
		total += amount
	}
	return items, total
}
