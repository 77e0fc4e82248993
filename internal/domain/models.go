package domain

import "time"

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "Cash"
	PaymentCard     PaymentMethod = "Card"
	PaymentTransfer PaymentMethod = "Transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	default:
		return false
	}
}

type SaleStatus string

const (
	SaleCompleted SaleStatus = "Completed"
	SaleCancelled SaleStatus = "Cancelled"
	SalePending   SaleStatus = "Pending"
)

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

type Supplier struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Active  bool   `json:"active"`
}

type Product struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CategoryID   int64     `json:"categoryId"`
	CategoryName string    `json:"categoryName,omitempty"`
	SupplierID   int64     `json:"supplierId,omitempty"`
	SupplierName string    `json:"supplierName,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	Variants     []Variant `json:"variants"`
}

// Variant is the sellable unit: it carries price and stock.
type Variant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"productId"`
	SKU       string `json:"sku"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Style     string `json:"style,omitempty"`
	Price     Money  `json:"price"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"minStock"`
	Active    bool   `json:"active"`
}

type VariantInput struct {
	ID       int64  `json:"id,omitempty"`
	SKU      string `json:"sku" validate:"required,max=64"`
	Size     string `json:"size,omitempty" validate:"max=32"`
	Color    string `json:"color,omitempty" validate:"max=32"`
	Style    string `json:"style,omitempty" validate:"max=64"`
	Price    Money  `json:"price" validate:"gt=0"`
	Stock    int    `json:"stock" validate:"gte=0"`
	MinStock int    `json:"minStock" validate:"gte=0"`
}

type ProductRequest struct {
	Code        string         `json:"code" validate:"required,max=64"`
	Name        string         `json:"name" validate:"required,max=200"`
	Description string         `json:"description,omitempty" validate:"max=1000"`
	CategoryID  int64          `json:"categoryId" validate:"required,gt=0"`
	SupplierID  int64          `json:"supplierId,omitempty" validate:"gte=0"`
	Variants    []VariantInput `json:"variants" validate:"required,min=1,dive"`
}

type SupplierRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Contact string `json:"contact,omitempty" validate:"max=200"`
	Phone   string `json:"phone,omitempty" validate:"max=40"`
	Email   string `json:"email,omitempty" validate:"omitempty,email,max=200"`
}

type RestockRequest struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Note     string `json:"note,omitempty" validate:"max=200"`
}

// CartLine is a requested line of a sale. UnitPrice is the price the client
// displayed; the authoritative price always comes from the catalog.
type CartLine struct {
	VariantID int64 `json:"variantId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
	UnitPrice Money `json:"unitPrice" validate:"gte=0"`
}

type CreateSaleRequest struct {
	SellerID       int64         `json:"sellerId,omitempty" validate:"gte=0"`
	Lines          []CartLine    `json:"lines" validate:"dive"`
	PaymentMethod  PaymentMethod `json:"paymentMethod" validate:"required,oneof=Cash Card Transfer"`
	Discount       Money         `json:"discount,omitempty" validate:"gte=0"`
	ClientTotal    *Money        `json:"clientTotal,omitempty"`
	CashReceived   Money         `json:"cashReceived,omitempty" validate:"gte=0"`
	Notes          string        `json:"notes,omitempty" validate:"max=500"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty" validate:"max=128"`
}

type CreateSaleResponse struct {
	SaleID       string     `json:"saleId"`
	TicketNumber string     `json:"ticketNumber"`
	Status       SaleStatus `json:"status"`
	Subtotal     Money      `json:"subtotal"`
	Discount     Money      `json:"discount"`
	Tax          Money      `json:"tax"`
	Total        Money      `json:"total"`
	Change       Money      `json:"change"`
	ItemCount    int        `json:"itemCount"`
	Duplicate    bool       `json:"duplicate"`
	CreatedAt    string     `json:"createdAt"`
}

type CancelSaleRequest struct {
	ActorID int64  `json:"actorId,omitempty"`
	Reason  string `json:"reason" validate:"max=500"`
}

type CancelSaleResponse struct {
	Success     bool       `json:"success"`
	SaleID      string     `json:"saleId"`
	Status      SaleStatus `json:"status"`
	CancelledAt string     `json:"cancelledAt"`
}

type Sale struct {
	ID             string        `json:"saleId"`
	TicketNumber   string        `json:"ticketNumber"`
	IdempotencyKey string        `json:"-"`
	SellerID       int64         `json:"sellerId"`
	SellerName     string        `json:"sellerName,omitempty"`
	Subtotal       Money         `json:"subtotal"`
	Discount       Money         `json:"discount"`
	Tax            Money         `json:"tax"`
	Total          Money         `json:"total"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
	Status         SaleStatus    `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	CancelledAt    *time.Time    `json:"cancelledAt,omitempty"`
	Lines          []SaleLine    `json:"lines"`
}

// SaleLine is immutable once written. The descriptive fields after Discount
// are filled on read from the catalog and are not persisted with the line.
type SaleLine struct {
	ID           int64  `json:"id"`
	SaleID       string `json:"saleId"`
	VariantID    int64  `json:"variantId"`
	Quantity     int    `json:"quantity"`
	UnitPrice    Money  `json:"unitPrice"`
	Discount     Money  `json:"discount"`
	ProductID    int64  `json:"productId,omitempty"`
	ProductName  string `json:"productName,omitempty"`
	SKU          string `json:"sku,omitempty"`
	Size         string `json:"size,omitempty"`
	Color        string `json:"color,omitempty"`
	CategoryID   int64  `json:"categoryId,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`
}

func (l SaleLine) Gross() Money {
	return l.UnitPrice * Money(l.Quantity)
}

func (s Sale) Units() int64 {
	units := int64(0)
	for _, line := range s.Lines {
		units += int64(line.Quantity)
	}
	return units
}
