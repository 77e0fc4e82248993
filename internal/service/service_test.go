package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanjoseboots/backend/internal/cache"
	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/pricing"
	"sanjoseboots/backend/internal/store"
	"sanjoseboots/backend/internal/store/memory"
)

var storeZone = time.FixedZone("CST", -6*60*60)

// stepClock starts at 2026-03-10 11:00 store time and advances one
// millisecond per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 10, 11, 0, 0, 0, storeZone)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type fixture struct {
	svc      *Service
	repo     *memory.Store
	admin    context.Context
	seller   context.Context
	sellerID int64
	boots    domain.Category
	belts    domain.Category
}

func newFixture(t *testing.T, repo store.Repository) *fixture {
	t.Helper()
	mem := memory.New()
	if repo == nil {
		repo = mem
	} else if wrapped, ok := repo.(*flakyTickets); ok {
		mem = wrapped.Store
	}

	admin, err := mem.CreateUser(context.Background(), domain.UserAccount{
		Username: "admin", PasswordHash: "x", FullName: "Admin", RoleName: domain.RoleAdmin,
	})
	require.NoError(t, err)
	seller, err := mem.CreateUser(context.Background(), domain.UserAccount{
		Username: "vendedor", PasswordHash: "x", FullName: "Vendedor Uno", RoleName: domain.RoleSeller,
	})
	require.NoError(t, err)

	clock := newStepClock()
	svc := New(repo, nil, Options{
		Location:         storeZone,
		Now:              clock.Now,
		LowStockFallback: 3,
	})

	return &fixture{
		svc:      svc,
		repo:     mem,
		admin:    WithActor(context.Background(), actorOf(admin)),
		seller:   WithActor(context.Background(), actorOf(seller)),
		sellerID: seller.ID,
		boots:    mem.AddCategory("Botas Vaqueras"),
		belts:    mem.AddCategory("Cintos"),
	}
}

func actorOf(user *domain.UserAccount) domain.Actor {
	return domain.Actor{UserID: user.ID, Username: user.Username, Role: user.RoleName, Permissions: user.Permissions}
}

// addVariant creates a one-variant product and returns the variant id.
func (f *fixture) addVariant(t *testing.T, category domain.Category, sku string, price domain.Money, stock int) int64 {
	t.Helper()
	product, err := f.repo.CreateProduct(context.Background(), domain.Product{
		Code:       sku,
		Name:       "Producto " + sku,
		CategoryID: category.ID,
		Variants:   []domain.Variant{{SKU: sku, Price: price, Stock: stock, MinStock: 2}},
	})
	require.NoError(t, err)
	return product.Variants[0].ID
}

func (f *fixture) stock(t *testing.T, variantID int64) int {
	t.Helper()
	products, err := f.repo.ListProducts(context.Background(), store.ProductQuery{IncludeInactive: true})
	require.NoError(t, err)
	for _, p := range products {
		for _, v := range p.Variants {
			if v.ID == variantID {
				return v.Stock
			}
		}
	}
	t.Fatalf("variant %d not found", variantID)
	return 0
}

func cashSale(lines ...domain.CartLine) domain.CreateSaleRequest {
	return domain.CreateSaleRequest{Lines: lines, PaymentMethod: domain.PaymentCash}
}

func TestCreateSaleComputesTotalsAndDecrementsStock(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	resp, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 2, UnitPrice: 10000}))
	require.NoError(t, err)

	assert.Equal(t, domain.Money(20000), resp.Subtotal)
	assert.Equal(t, domain.Money(3200), resp.Tax)
	assert.Equal(t, domain.Money(23200), resp.Total)
	assert.Regexp(t, `^TKT-20260310-110000\d{3}-[0-9A-F]{2}$`, resp.TicketNumber)
	assert.NotEmpty(t, resp.SaleID)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, 3, f.stock(t, variant))

	sale, err := f.svc.GetSale(f.seller, resp.SaleID)
	require.NoError(t, err)
	assert.Equal(t, f.sellerID, sale.SellerID)
	assert.Equal(t, domain.SaleCompleted, sale.Status)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, domain.Money(10000), sale.Lines[0].UnitPrice)
}

func TestCreateSaleRefusesInsufficientStock(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 1)

	_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 2}))

	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, variant, stockErr.VariantID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 1, f.stock(t, variant))

	sales, err := f.repo.ListSales(context.Background(), store.SaleQuery{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	first := f.addVariant(t, f.boots, "BV-26", 10000, 5)
	second := f.addVariant(t, f.boots, "BV-27", 10000, 1)
	third := f.addVariant(t, f.belts, "CI-32", 4500, 5)

	_, err := f.svc.CreateSale(f.seller, cashSale(
		domain.CartLine{VariantID: first, Quantity: 1},
		domain.CartLine{VariantID: second, Quantity: 2},
		domain.CartLine{VariantID: third, Quantity: 1},
	))
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	assert.Equal(t, 5, f.stock(t, first))
	assert.Equal(t, 1, f.stock(t, second))
	assert.Equal(t, 5, f.stock(t, third))
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	tests := []struct {
		name string
		req  domain.CreateSaleRequest
		want error
	}{
		{"empty cart", cashSale(), ErrEmptyCart},
		{"zero quantity", cashSale(domain.CartLine{VariantID: variant, Quantity: 0}), ErrValidation},
		{"unknown variant", cashSale(domain.CartLine{VariantID: 9999, Quantity: 1}), store.ErrNotFound},
		{"bad payment", domain.CreateSaleRequest{
			Lines:         []domain.CartLine{{VariantID: variant, Quantity: 1}},
			PaymentMethod: "Bitcoin",
		}, ErrValidation},
		{"stale client price", cashSale(domain.CartLine{VariantID: variant, Quantity: 1, UnitPrice: 9000}), store.ErrPriceMismatch},
		{"discount above subtotal", domain.CreateSaleRequest{
			Lines:         []domain.CartLine{{VariantID: variant, Quantity: 1}},
			PaymentMethod: domain.PaymentCard,
			Discount:      20000,
		}, ErrValidation},
		{"not enough cash", domain.CreateSaleRequest{
			Lines:         []domain.CartLine{{VariantID: variant, Quantity: 1}},
			PaymentMethod: domain.PaymentCash,
			CashReceived:  10000,
		}, ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSale(f.seller, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 5, f.stock(t, variant))
		})
	}
}

func TestCreateSaleToleratesOneCentAndChecksClientTotal(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	resp, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1, UnitPrice: 10001}))
	require.NoError(t, err)
	assert.Equal(t, domain.Money(11600), resp.Total)

	wrong := domain.Money(11000)
	req := cashSale(domain.CartLine{VariantID: variant, Quantity: 1})
	req.ClientTotal = &wrong
	_, err = f.svc.CreateSale(f.seller, req)
	assert.ErrorIs(t, err, store.ErrPriceMismatch)
	assert.Equal(t, 4, f.stock(t, variant))
}

func TestCreateSaleReturnsChangeAndAllocatesDiscount(t *testing.T) {
	f := newFixture(t, nil)
	boots := f.addVariant(t, f.boots, "BV-27", 30000, 5)
	belt := f.addVariant(t, f.belts, "CI-32", 10000, 5)

	resp, err := f.svc.CreateSale(f.seller, domain.CreateSaleRequest{
		Lines: []domain.CartLine{
			{VariantID: boots, Quantity: 1},
			{VariantID: belt, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCash,
		Discount:      4000,
		CashReceived:  50000,
	})
	require.NoError(t, err)

	// (400.00 - 40.00) * 1.16 = 417.60
	assert.Equal(t, domain.Money(41760), resp.Total)
	assert.Equal(t, domain.Money(50000-41760), resp.Change)

	sale, err := f.svc.GetSale(f.seller, resp.SaleID)
	require.NoError(t, err)
	require.Len(t, sale.Lines, 2)
	assert.Equal(t, domain.Money(3000), sale.Lines[0].Discount)
	assert.Equal(t, domain.Money(1000), sale.Lines[1].Discount)
}

func TestCreateSaleMergesRepeatedVariants(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	resp, err := f.svc.CreateSale(f.seller, cashSale(
		domain.CartLine{VariantID: variant, Quantity: 2},
		domain.CartLine{VariantID: variant, Quantity: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.ItemCount)
	assert.Equal(t, 2, f.stock(t, variant))
}

func TestCreateSaleIdempotencyKeyReturnsOriginalSale(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	req := cashSale(domain.CartLine{VariantID: variant, Quantity: 2})
	req.IdempotencyKey = "pos-1-0001"

	first, err := f.svc.CreateSale(f.seller, req)
	require.NoError(t, err)
	second, err := f.svc.CreateSale(f.seller, req)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.SaleID, second.SaleID)
	assert.Equal(t, first.TicketNumber, second.TicketNumber)
	assert.Equal(t, 3, f.stock(t, variant))
}

func TestCreateSaleReplaysKeyAfterStockRunsOut(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-28", 10000, 2)

	req := cashSale(domain.CartLine{VariantID: variant, Quantity: 2, UnitPrice: 10000})
	req.IdempotencyKey = "retry-1"
	req.CashReceived = 25000

	first, err := f.svc.CreateSale(f.seller, req)
	require.NoError(t, err)
	require.Equal(t, 0, f.stock(t, variant))

	second, err := f.svc.CreateSale(f.seller, req)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.SaleID, second.SaleID)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Change, second.Change)
	assert.Equal(t, 0, f.stock(t, variant))
}

func TestCreateSaleReleasesIdempotencyKeyOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 1)

	req := cashSale(domain.CartLine{VariantID: variant, Quantity: 2})
	req.IdempotencyKey = "pos-1-0002"
	_, err := f.svc.CreateSale(f.seller, req)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	require.NoError(t, f.repo.Increment(context.Background(), variant, 1))
	resp, err := f.svc.CreateSale(f.seller, req)
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
}

func TestCreateSaleReportsKeyInFlight(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)
	idem := cache.NewMemoryIdempotencyStore()
	f.svc.idempotency = idem

	claimed, err := idem.Claim(context.Background(), "pos-1-0003", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	req := cashSale(domain.CartLine{VariantID: variant, Quantity: 1})
	req.IdempotencyKey = "pos-1-0003"
	_, err = f.svc.CreateSale(f.seller, req)
	assert.ErrorIs(t, err, ErrIdempotencyInFlight)
	assert.Equal(t, 5, f.stock(t, variant))
}

// flakyTickets reports a ticket collision for the first failures writes.
type flakyTickets struct {
	*memory.Store
	failures int
	attempts int
}

func (f *flakyTickets) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return nil, store.ErrDuplicateTicket
	}
	return f.Store.CreateSale(ctx, sale)
}

func TestCreateSaleRetriesTicketCollisions(t *testing.T) {
	repo := &flakyTickets{Store: memory.New(), failures: 2}
	f := newFixture(t, repo)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	resp, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TicketNumber)
	assert.Equal(t, 3, repo.attempts)
	assert.Equal(t, 4, f.stock(t, variant))
}

func TestCreateSaleGivesUpAfterTicketRetries(t *testing.T) {
	repo := &flakyTickets{Store: memory.New(), failures: 10}
	f := newFixture(t, repo)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
	assert.ErrorIs(t, err, store.ErrDuplicateTicket)
	assert.Equal(t, 3, repo.attempts)
	assert.Equal(t, 5, f.stock(t, variant))
}

func TestCreateSaleConcurrentCallsNeverOversell(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrInsufficientStock):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 7, refused)
	assert.Equal(t, 0, f.stock(t, variant))
}

func TestCreateSaleAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)
	req := cashSale(domain.CartLine{VariantID: variant, Quantity: 1})

	_, err := f.svc.CreateSale(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	noRights := WithActor(context.Background(), domain.Actor{UserID: 99, Username: "guest", Role: "Invitado"})
	_, err = f.svc.CreateSale(noRights, req)
	assert.ErrorIs(t, err, ErrForbidden)

	onBehalf := req
	onBehalf.SellerID = f.sellerID + 100
	_, err = f.svc.CreateSale(f.seller, onBehalf)
	assert.ErrorIs(t, err, ErrForbidden)

	onBehalf.SellerID = f.sellerID
	resp, err := f.svc.CreateSale(f.admin, onBehalf)
	require.NoError(t, err)
	sale, err := f.svc.GetSale(f.admin, resp.SaleID)
	require.NoError(t, err)
	assert.Equal(t, f.sellerID, sale.SellerID)
	assert.Equal(t, 3, f.stock(t, variant))
}

func TestCancelSaleRestoresStockAndExcludesRevenue(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	kept, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
	require.NoError(t, err)
	cancelled, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, variant))

	resp, err := f.svc.CancelSale(f.admin, cancelled.SaleID, domain.CancelSaleRequest{Reason: "customer return"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, domain.SaleCancelled, resp.Status)
	assert.Equal(t, 4, f.stock(t, variant))

	sale, err := f.svc.GetSale(f.admin, cancelled.SaleID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleCancelled, sale.Status)
	assert.Contains(t, sale.Notes, "by admin] customer return")
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, 2, sale.Lines[0].Quantity)

	days, err := f.svc.DailySales(f.admin, domain.ReportQuery{Start: "2026-03-10", End: "2026-03-10"})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, int64(1), days[0].Sales)
	assert.Equal(t, kept.Total, days[0].Revenue)
}

func TestCancelSaleTwiceFailsTheSecondTime(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)
	created, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 2}))
	require.NoError(t, err)

	_, err = f.svc.CancelSale(f.admin, created.SaleID, domain.CancelSaleRequest{Reason: "wrong size"})
	require.NoError(t, err)
	_, err = f.svc.CancelSale(f.admin, created.SaleID, domain.CancelSaleRequest{Reason: "wrong size"})
	assert.ErrorIs(t, err, store.ErrAlreadyCancelled)

	sale, err := f.svc.GetSale(f.admin, created.SaleID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleCancelled, sale.Status)
	assert.Equal(t, 5, f.stock(t, variant))
}

func TestCancelSaleValidatesBeforeTouchingState(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)
	created, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 2}))
	require.NoError(t, err)

	_, err = f.svc.CancelSale(f.admin, created.SaleID, domain.CancelSaleRequest{Reason: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CancelSale(f.seller, created.SaleID, domain.CancelSaleRequest{Reason: "customer return"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CancelSale(f.admin, "missing", domain.CancelSaleRequest{Reason: "customer return"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	sale, err := f.svc.GetSale(f.admin, created.SaleID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleCompleted, sale.Status)
	assert.Equal(t, 3, f.stock(t, variant))
}

func TestSalesByPaymentMethodPercentages(t *testing.T) {
	f := newFixture(t, nil)
	cheap := f.addVariant(t, f.boots, "BV-100", 10000, 5)
	pricey := f.addVariant(t, f.boots, "BV-300", 30000, 5)

	_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: cheap, Quantity: 1}))
	require.NoError(t, err)
	_, err = f.svc.CreateSale(f.seller, domain.CreateSaleRequest{
		Lines:         []domain.CartLine{{VariantID: pricey, Quantity: 1}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)

	methods, err := f.svc.SalesByPaymentMethod(f.admin, domain.ReportQuery{Start: "2026-03-10"})
	require.NoError(t, err)
	require.Len(t, methods, 2)

	assert.Equal(t, domain.PaymentCard, methods[0].PaymentMethod)
	assert.True(t, methods[0].Percentage.Equal(decimal.NewFromInt(75)), methods[0].Percentage.String())
	assert.Equal(t, domain.PaymentCash, methods[1].PaymentMethod)
	assert.True(t, methods[1].Percentage.Equal(decimal.NewFromInt(25)), methods[1].Percentage.String())
	assert.True(t, methods[0].Percentage.Add(methods[1].Percentage).Equal(decimal.NewFromInt(100)))
}

func TestReportsAgreeOnRevenue(t *testing.T) {
	f := newFixture(t, nil)
	boots := f.addVariant(t, f.boots, "BV-27", 28990, 20)
	belt := f.addVariant(t, f.belts, "CI-32", 4500, 20)

	requests := []domain.CreateSaleRequest{
		{Lines: []domain.CartLine{{VariantID: boots, Quantity: 1}, {VariantID: belt, Quantity: 3}}, PaymentMethod: domain.PaymentCash, Discount: 777},
		{Lines: []domain.CartLine{{VariantID: belt, Quantity: 1}}, PaymentMethod: domain.PaymentCard},
		{Lines: []domain.CartLine{{VariantID: boots, Quantity: 2}, {VariantID: belt, Quantity: 1}}, PaymentMethod: domain.PaymentTransfer, Discount: 1001},
		{Lines: []domain.CartLine{{VariantID: boots, Quantity: 1}}, PaymentMethod: domain.PaymentCard},
	}
	var ids []string
	for _, req := range requests {
		resp, err := f.svc.CreateSale(f.seller, req)
		require.NoError(t, err)
		ids = append(ids, resp.SaleID)
	}
	_, err := f.svc.CancelSale(f.admin, ids[3], domain.CancelSaleRequest{Reason: "customer return"})
	require.NoError(t, err)

	q := domain.ReportQuery{Start: "2026-03-01", End: "2026-03-31"}
	days, err := f.svc.DailySales(f.admin, q)
	require.NoError(t, err)
	categories, err := f.svc.SalesByCategory(f.admin, q)
	require.NoError(t, err)
	methods, err := f.svc.SalesByPaymentMethod(f.admin, q)
	require.NoError(t, err)
	sellers, err := f.svc.SellerPerformance(f.admin, q)
	require.NoError(t, err)

	var daily, byCategory, byMethod domain.Money
	for _, d := range days {
		daily += d.Revenue
	}
	pct := decimal.Zero
	for _, c := range categories {
		byCategory += c.Revenue
		pct = pct.Add(c.Percentage)
	}
	for _, m := range methods {
		byMethod += m.Revenue
	}

	assert.NotZero(t, daily)
	assert.Equal(t, daily, byCategory)
	assert.Equal(t, daily, byMethod)
	assert.True(t, pct.Equal(decimal.NewFromInt(100)), pct.String())

	require.Len(t, sellers, 1)
	assert.Equal(t, int64(4), sellers[0].TotalSales)
	assert.Equal(t, int64(3), sellers[0].CompletedSales)
	assert.Equal(t, int64(1), sellers[0].CancelledSales)
	assert.Equal(t, daily, sellers[0].Revenue)
	assert.Equal(t, "Vendedor Uno", sellers[0].SellerName)
}

func TestTopProductsOrdersByQuantity(t *testing.T) {
	f := newFixture(t, nil)
	boots := f.addVariant(t, f.boots, "BV-27", 28990, 20)
	belt := f.addVariant(t, f.belts, "CI-32", 4500, 20)

	_, err := f.svc.CreateSale(f.seller, cashSale(
		domain.CartLine{VariantID: boots, Quantity: 1},
		domain.CartLine{VariantID: belt, Quantity: 4},
	))
	require.NoError(t, err)

	top, err := f.svc.TopProducts(f.admin, domain.ReportQuery{Start: "2026-03-10", Limit: 1})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, belt, top[0].VariantID)
	assert.Equal(t, int64(4), top[0].Quantity)

	onlyBoots, err := f.svc.TopProducts(f.admin, domain.ReportQuery{Start: "2026-03-10", CategoryID: f.boots.ID})
	require.NoError(t, err)
	require.Len(t, onlyBoots, 1)
	assert.Equal(t, boots, onlyBoots[0].VariantID)
}

func TestParseRangeUsesStoreDays(t *testing.T) {
	f := newFixture(t, nil)

	from, to, err := f.svc.ParseRange("2026-03-01", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC), to)

	from, to, err = f.svc.ParseRange("", "")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, to.Sub(from))

	for _, bad := range [][2]string{{"2026-13-01", ""}, {"2026-03-05", "2026-03-01"}, {"2024-01-01", "2026-01-01"}} {
		_, _, err := f.svc.ParseRange(bad[0], bad[1])
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestReportsRequirePermission(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.DailySales(f.seller, domain.ReportQuery{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Dashboard(f.seller)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.InventoryValuation(context.Background(), domain.InventoryQuery{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestStockLevelBands(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, domain.StockOut, f.svc.StockLevel(0, 2))
	assert.Equal(t, domain.StockLow, f.svc.StockLevel(2, 2))
	assert.Equal(t, domain.StockMedium, f.svc.StockLevel(4, 2))
	assert.Equal(t, domain.StockNormal, f.svc.StockLevel(5, 2))
	// falls back to the configured threshold of 3
	assert.Equal(t, domain.StockLow, f.svc.StockLevel(3, 0))
}

func TestInventoryValuationRollsUpByCategory(t *testing.T) {
	f := newFixture(t, nil)
	f.addVariant(t, f.boots, "BV-26", 10000, 3)
	f.addVariant(t, f.boots, "BV-27", 20000, 0)
	f.addVariant(t, f.belts, "CI-32", 4500, 10)

	valuation, err := f.svc.InventoryValuation(f.admin, domain.InventoryQuery{})
	require.NoError(t, err)

	assert.Equal(t, 3, valuation.Products)
	assert.Equal(t, 3, valuation.Variants)
	assert.Equal(t, int64(13), valuation.Units)
	assert.Equal(t, domain.Money(30000+45000), valuation.Value)
	require.Len(t, valuation.Categories, 2)
	assert.Equal(t, "Botas Vaqueras", valuation.Categories[0].CategoryName)
	assert.Equal(t, domain.Money(30000), valuation.Categories[0].Value)

	low, err := f.svc.InventoryValuation(f.admin, domain.InventoryQuery{LowStockOnly: true})
	require.NoError(t, err)
	require.Len(t, low.Lines, 1)
	assert.Equal(t, domain.StockOut, low.Lines[0].Level)
}

func TestDashboardCombinesTodayMonthAndInventory(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 3)

	_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 2}))
	require.NoError(t, err)

	dashboard, err := f.svc.Dashboard(f.admin)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", dashboard.Date)
	assert.Equal(t, int64(1), dashboard.Today.Sales)
	assert.Equal(t, domain.Money(23200), dashboard.Today.Revenue)
	assert.Equal(t, dashboard.Today.Revenue, dashboard.Month.Revenue)
	assert.Equal(t, 1, dashboard.Inventory.LowStockVariants)
	require.Len(t, dashboard.TopProducts, 1)
	assert.Equal(t, variant, dashboard.TopProducts[0].VariantID)
}

func TestDailySummaryGroupsByHour(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
	require.NoError(t, err)

	summary, err := f.svc.DailySummary(f.seller, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Summary.Sales)
	require.Len(t, summary.ByHour, 1)
	assert.Equal(t, 11, summary.ByHour[0].Hour)
	require.Len(t, summary.TopSellers, 1)
}

type countingCache struct {
	cache.NoopReportCache
	invalidations int
}

func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}

func TestWritesInvalidateReportCache(t *testing.T) {
	f := newFixture(t, nil)
	counter := &countingCache{}
	f.svc.reports = counter
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	resp, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
	require.NoError(t, err)
	_, err = f.svc.CancelSale(f.admin, resp.SaleID, domain.CancelSaleRequest{Reason: "test"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Restock(f.admin, variant, domain.RestockRequest{Quantity: 2}))

	assert.Equal(t, 3, counter.invalidations)
	assert.Equal(t, 7, f.stock(t, variant))
}

func TestDailySalesGroupsByPeriod(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 10)

	for _, at := range []time.Time{
		time.Date(2026, 3, 2, 10, 0, 0, 0, storeZone),  // Monday
		time.Date(2026, 3, 8, 19, 0, 0, 0, storeZone),  // Sunday, same week
		time.Date(2026, 3, 10, 12, 0, 0, 0, storeZone), // next week
		time.Date(2026, 4, 1, 9, 0, 0, 0, storeZone),
	} {
		f.svc.now = func() time.Time { return at }
		_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
		require.NoError(t, err)
	}

	q := domain.ReportQuery{Start: "2026-03-01", End: "2026-04-05"}
	dates := func(days []domain.DailySales) map[string]int64 {
		out := map[string]int64{}
		for _, d := range days {
			out[d.Date] = d.Sales
		}
		return out
	}

	days, err := f.svc.DailySales(f.admin, q)
	require.NoError(t, err)
	assert.Len(t, days, 4)
	assert.Equal(t, domain.PeriodDay, days[0].Period)

	q.GroupBy = "week"
	weeks, err := f.svc.DailySales(f.admin, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2026-03-02": 2, "2026-03-09": 1, "2026-03-30": 1}, dates(weeks))

	q.GroupBy = "MENSUAL"
	months, err := f.svc.DailySales(f.admin, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2026-03-01": 3, "2026-04-01": 1}, dates(months))
	assert.Equal(t, domain.PeriodMonth, months[0].Period)
	assert.Equal(t, domain.Money(34800), months[0].Revenue)

	q.GroupBy = "yearly"
	_, err = f.svc.DailySales(f.admin, q)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCachedReportsRefreshAfterSale(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.reports = cache.NewMemoryReportCache()
	f.svc.reportCacheTTL = time.Minute
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)
	q := domain.ReportQuery{Start: "2026-03-10", End: "2026-03-10"}

	_, err := f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
	require.NoError(t, err)
	days, err := f.svc.DailySales(f.admin, q)
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.Equal(t, int64(1), days[0].Sales)

	_, err = f.svc.CreateSale(f.seller, cashSale(domain.CartLine{VariantID: variant, Quantity: 1}))
	require.NoError(t, err)
	days, err = f.svc.DailySales(f.admin, q)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, int64(2), days[0].Sales)
}

func TestRestockValidatesQuantity(t *testing.T) {
	f := newFixture(t, nil)
	variant := f.addVariant(t, f.boots, "BV-27", 10000, 5)

	assert.ErrorIs(t, f.svc.Restock(f.admin, variant, domain.RestockRequest{Quantity: 0}), ErrValidation)
	assert.ErrorIs(t, f.svc.Restock(f.admin, variant, domain.RestockRequest{Quantity: store.MaxStockIncrement + 1}), ErrValidation)
	assert.ErrorIs(t, f.svc.Restock(f.seller, variant, domain.RestockRequest{Quantity: 1}), ErrForbidden)
	assert.ErrorIs(t, f.svc.Restock(f.admin, 9999, domain.RestockRequest{Quantity: 1}), store.ErrNotFound)
}

func TestCreateSupplierRequiresNameAndPermission(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CreateSupplier(f.seller, domain.SupplierRequest{Name: "Curtidos León"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CreateSupplier(f.admin, domain.SupplierRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	created, err := f.svc.CreateSupplier(f.admin, domain.SupplierRequest{Name: " Curtidos León ", Email: "Ventas@Curtidos.MX"})
	require.NoError(t, err)
	assert.Equal(t, "Curtidos León", created.Name)
	assert.Equal(t, "ventas@curtidos.mx", created.Email)

	suppliers, err := f.svc.ListSuppliers(f.seller)
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	assert.Equal(t, created.ID, suppliers[0].ID)
}

func TestProductLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	created, err := f.svc.CreateProduct(f.admin, domain.ProductRequest{
		Code:       " bv-900 ",
		Name:       "Bota Exotica",
		CategoryID: f.boots.ID,
		Variants: []domain.VariantInput{
			{SKU: "bv-900-26", Size: "26", Price: 450000, Stock: 2, MinStock: 1},
			{SKU: "bv-900-27", Size: "27", Price: 450000, Stock: 3, MinStock: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "BV-900", created.Code)
	require.Len(t, created.Variants, 2)

	_, err = f.svc.CreateProduct(f.seller, domain.ProductRequest{Code: "X", Name: "X", CategoryID: f.boots.ID,
		Variants: []domain.VariantInput{{SKU: "X-1", Price: 100}}})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateProduct(f.admin, domain.ProductRequest{Code: "DUP", Name: "Dup", CategoryID: f.boots.ID,
		Variants: []domain.VariantInput{{SKU: "D-1", Price: 100}, {SKU: "d-1", Price: 100}}})
	assert.ErrorIs(t, err, ErrValidation)

	kept := created.Variants[0]
	updated, err := f.svc.UpdateProduct(f.admin, created.ID, domain.ProductRequest{
		Code:       "BV-900",
		Name:       "Bota Exotica Piton",
		CategoryID: f.boots.ID,
		Variants: []domain.VariantInput{
			{ID: kept.ID, SKU: kept.SKU, Size: kept.Size, Price: 470000, Stock: 99, MinStock: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bota Exotica Piton", updated.Name)
	assert.Equal(t, kept.Stock, f.stock(t, kept.ID))

	variant, err := f.svc.GetVariant(f.seller, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(470000), variant.Price)
	_, err = f.svc.GetVariant(f.seller, created.Variants[1].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, f.svc.DeleteProduct(f.admin, created.ID))
	products, err := f.svc.ListProducts(f.seller, store.ProductQuery{Search: "exotica"})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestNewFallsBackToDefaults(t *testing.T) {
	svc := New(memory.New(), nil, Options{})

	assert.Equal(t, time.UTC, svc.Location())
	assert.True(t, svc.calc.TaxRate().Equal(pricing.DefaultTaxRate))
	assert.Equal(t, 3, svc.ticketRetries)
}
