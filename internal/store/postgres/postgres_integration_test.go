package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/store"
	"sanjoseboots/backend/internal/store/migrations"
)

func TestConcurrentSalesNeverOversell(t *testing.T) {
	databaseURL := os.Getenv("SANJOSE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SANJOSE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := migrations.Up(s.DB(), zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	var categoryID int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM categories ORDER BY id LIMIT 1`).Scan(&categoryID); err != nil {
		t.Fatalf("load category: %v", err)
	}
	seller, err := s.CreateUser(ctx, domain.UserAccount{
		Username:     fmt.Sprintf("it-seller-%d", stamp),
		PasswordHash: "not-a-real-hash",
		FullName:     "Integration Seller",
		RoleName:     domain.RoleSeller,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		Code:       fmt.Sprintf("IT-%d", stamp),
		Name:       "Bota Integracion",
		CategoryID: categoryID,
		Variants:   []domain.Variant{{SKU: fmt.Sprintf("IT-%d-27", stamp), Size: "27", Price: 10000, Stock: 5, MinStock: 1}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	variant := product.Variants[0]

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE variant_id = $1`, variant.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE seller_id = $1`, seller.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, seller.ID)
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*domain.Sale
		refused int
	)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := s.CreateSale(ctx, domain.Sale{
				TicketNumber:  fmt.Sprintf("IT-%d-%d", stamp, i),
				SellerID:      seller.ID,
				Subtotal:      30000,
				Tax:           4800,
				Total:         34800,
				PaymentMethod: domain.PaymentCash,
				Lines:         []domain.SaleLine{{VariantID: variant.ID, Quantity: 3, UnitPrice: 10000}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created = append(created, sale)
			case errors.Is(err, store.ErrInsufficientStock):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(created) != 1 || refused != 3 {
		t.Fatalf("expected exactly one sale, got %d created and %d refused", len(created), refused)
	}
	current, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if current.Variants[0].Stock != 2 {
		t.Fatalf("expected stock 2, got %d", current.Variants[0].Stock)
	}

	if _, err := s.CancelSale(ctx, created[0].ID, "integration test cancel", time.Now().UTC()); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if _, err := s.CancelSale(ctx, created[0].ID, "again", time.Now().UTC()); !errors.Is(err, store.ErrAlreadyCancelled) {
		t.Fatalf("expected already cancelled, got %v", err)
	}
	current, err = s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if current.Variants[0].Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", current.Variants[0].Stock)
	}
}
