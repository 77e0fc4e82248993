package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sanjoseboots/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateTicket   = errors.New("duplicate ticket number")
	ErrAlreadyCancelled  = errors.New("sale already cancelled")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPriceMismatch     = errors.New("price mismatch")
	ErrConflict          = errors.New("conflict")
	// ErrIdempotencyKeyUsed means another sale already holds the key.
	ErrIdempotencyKeyUsed = errors.New("idempotency key already used")
)

// MaxStockIncrement bounds a single restoration or restock.
const MaxStockIncrement = 10000

// InsufficientStockError names the variant that could not be decremented
// and the stock it had when the decrement was refused.
type InsufficientStockError struct {
	VariantID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %d: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type ProductQuery struct {
	Search          string
	CategoryID      int64
	SupplierID      int64
	IncludeInactive bool
}

// SaleQuery selects sales created in [From, To). Zero values disable a filter.
type SaleQuery struct {
	From          time.Time
	To            time.Time
	SellerID      int64
	Status        domain.SaleStatus
	PaymentMethod domain.PaymentMethod
	Limit         int
}

type Catalog interface {
	ListProducts(ctx context.Context, query ProductQuery) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetVariants(ctx context.Context, ids []int64) (map[int64]domain.Variant, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
}

// StockLedger is the only writer of variant stock. ReserveAndDecrement never
// lets stock go below zero; a refused decrement returns *InsufficientStockError.
type StockLedger interface {
	ReserveAndDecrement(ctx context.Context, variantID int64, qty int) error
	Increment(ctx context.Context, variantID int64, qty int) error
}

type Sales interface {
	// CreateSale decrements stock for every line and writes the sale with its
	// lines as one unit of work. Line prices must equal the current catalog
	// prices or ErrPriceMismatch is returned.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	// CancelSale flips a completed sale to cancelled, appends note to its
	// notes and restores the stock of every line.
	CancelSale(ctx context.Context, id string, note string, at time.Time) (*domain.Sale, error)
	ListSales(ctx context.Context, query SaleQuery) ([]domain.Sale, error)
}

type Users interface {
	FindUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	GetUser(ctx context.Context, id int64) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetRoleByName(ctx context.Context, name string) (*domain.Role, error)
}

type Repository interface {
	Catalog
	StockLedger
	Sales
	Users
}
