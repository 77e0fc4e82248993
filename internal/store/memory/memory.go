package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/store"
)

type Store struct {
	mu sync.RWMutex

	rolesByName     map[string]domain.Role
	usersByID       map[int64]domain.UserAccount
	userIDsByName   map[string]int64
	categories      map[int64]domain.Category
	suppliers       map[int64]domain.Supplier
	products        map[int64]domain.Product
	variants        map[int64]domain.Variant
	salesByID       map[string]*domain.Sale
	saleIDsByIdem   map[string]string
	saleIDsByTicket map[string]string

	nextID int64
}

// New returns a store holding only the default roles.
func New() *Store {
	s := &Store{
		rolesByName:     make(map[string]domain.Role),
		usersByID:       make(map[int64]domain.UserAccount),
		userIDsByName:   make(map[string]int64),
		categories:      make(map[int64]domain.Category),
		suppliers:       make(map[int64]domain.Supplier),
		products:        make(map[int64]domain.Product),
		variants:        make(map[int64]domain.Variant),
		salesByID:       make(map[string]*domain.Sale),
		saleIDsByIdem:   make(map[string]string),
		saleIDsByTicket: make(map[string]string),
	}
	s.seedRoles()
	return s
}

// NewSeeded returns a store with a demo catalog and two accounts. Passwords come from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// and fall back to dev defaults; the postgres store is used whenever
// DATABASE_URL is set, so these never reach production.
func NewSeeded() *Store {
	s := New()
	s.seedCatalog()
	s.seedUsers(bcrypt.DefaultCost)
	return s
}

func (s *Store) seedRoles() {
	for _, role := range DefaultRoles() {
		s.nextID++
		role.ID = s.nextID
		s.rolesByName[role.Name] = role
	}
}

// DefaultRoles are the two roles the shop ships with.
func DefaultRoles() []domain.Role {
	return []domain.Role{
		{
			Name: domain.RoleAdmin,
			Permissions: domain.Permissions{
				domain.ResourceSales:     {All: true},
				domain.ResourceProducts:  {All: true},
				domain.ResourceInventory: {All: true},
				domain.ResourceReports:   {All: true},
				domain.ResourceUsers:     {All: true},
			},
		},
		{
			Name: domain.RoleSeller,
			Permissions: domain.Permissions{
				domain.ResourceSales:     {Actions: map[string]bool{domain.ActionRead: true, domain.ActionCreate: true}},
				domain.ResourceProducts:  {Actions: map[string]bool{domain.ActionRead: true}},
				domain.ResourceInventory: {Actions: map[string]bool{domain.ActionRead: true}},
			},
		},
	}
}

func (s *Store) seedUsers(cost int) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin12345")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "vendedor123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials",
			zap.String("hint", "set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override"))
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		fullName string
		role     string
	}{
		{"admin", adminPwd, "Administrador General", domain.RoleAdmin},
		{"vendedor", sellerPwd, "Vendedor Mostrador", domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), cost)
		if err != nil {
			zap.L().Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		role := s.rolesByName[u.role]
		s.nextID++
		account := domain.UserAccount{
			ID:           s.nextID,
			Username:     u.username,
			PasswordHash: string(hash),
			FullName:     u.fullName,
			RoleID:       role.ID,
			RoleName:     role.Name,
			Permissions:  role.Permissions,
			Active:       true,
			CreatedAt:    now,
		}
		s.usersByID[account.ID] = account
		s.userIDsByName[account.Username] = account.ID
	}
}

// AddCategory registers an active category and returns it with its id.
func (s *Store) AddCategory(name string) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	category := domain.Category{ID: s.nextID, Name: name, Active: true}
	s.categories[category.ID] = category
	return category
}

func (s *Store) AddSupplier(name string) domain.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	supplier := domain.Supplier{ID: s.nextID, Name: name, Active: true}
	s.suppliers[supplier.ID] = supplier
	return supplier
}

func (s *Store) seedCatalog() {
	now := time.Now().UTC()
	categoryIDs := map[string]int64{}
	for _, name := range []string{"Botas Vaqueras", "Botas de Trabajo", "Cintos", "Sombreros"} {
		categoryIDs[name] = s.AddCategory(name).ID
	}
	supplierIDs := map[string]int64{}
	for _, name := range []string{"Curtidos del Bajio", "Sombreros Tardan"} {
		supplierIDs[name] = s.AddSupplier(name).ID
	}

	type seedVariant struct {
		sku, size, color string
		price            domain.Money
		stock, minStock  int
	}
	for _, p := range []struct {
		code, name, category, supplier string
		variants                       []seedVariant
	}{
		{"BV-100", "Bota Vaquera Avestruz", "Botas Vaqueras", "Curtidos del Bajio", []seedVariant{
			{"BV-100-26-CAF", "26", "Cafe", 289900, 8, 2},
			{"BV-100-27-CAF", "27", "Cafe", 289900, 6, 2},
			{"BV-100-27-NEG", "27", "Negro", 299900, 4, 2},
		}},
		{"BV-200", "Bota Vaquera Piel Res", "Botas Vaqueras", "Curtidos del Bajio", []seedVariant{
			{"BV-200-25-MIE", "25", "Miel", 149900, 10, 3},
			{"BV-200-28-MIE", "28", "Miel", 149900, 2, 3},
		}},
		{"BT-300", "Bota de Trabajo Casquillo", "Botas de Trabajo", "Curtidos del Bajio", []seedVariant{
			{"BT-300-27-NEG", "27", "Negro", 119900, 12, 4},
			{"BT-300-29-NEG", "29", "Negro", 119900, 0, 4},
		}},
		{"CI-010", "Cinto Piel Grabado", "Cintos", "Curtidos del Bajio", []seedVariant{
			{"CI-010-32-CAF", "32", "Cafe", 45000, 20, 5},
			{"CI-010-36-NEG", "36", "Negro", 45000, 15, 5},
		}},
		{"SO-500", "Sombrero Texana 10X", "Sombreros", "Sombreros Tardan", []seedVariant{
			{"SO-500-57-ARE", "57", "Arena", 189000, 5, 1},
		}},
	} {
		s.nextID++
		productID := s.nextID
		s.products[productID] = domain.Product{
			ID:         productID,
			Code:       p.code,
			Name:       p.name,
			CategoryID: categoryIDs[p.category],
			SupplierID: supplierIDs[p.supplier],
			Active:     true,
			CreatedAt:  now,
		}
		for _, v := range p.variants {
			s.nextID++
			s.variants[s.nextID] = domain.Variant{
				ID:        s.nextID,
				ProductID: productID,
				SKU:       v.sku,
				Size:      v.size,
				Color:     v.color,
				Price:     v.price,
				Stock:     v.stock,
				MinStock:  v.minStock,
				Active:    true,
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context, query store.ProductQuery) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(query.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !query.IncludeInactive {
			continue
		}
		if query.CategoryID != 0 && p.CategoryID != query.CategoryID {
			continue
		}
		if query.SupplierID != 0 && p.SupplierID != query.SupplierID {
			continue
		}
		product := s.productWithVariantsLocked(p, query.IncludeInactive)
		if search != "" && !matchesSearch(product, search) {
			continue
		}
		products = append(products, product)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpInt64(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func matchesSearch(p domain.Product, search string) bool {
	if strings.Contains(strings.ToLower(p.Name), search) || strings.Contains(strings.ToLower(p.Code), search) {
		return true
	}
	for _, v := range p.Variants {
		if strings.Contains(strings.ToLower(v.SKU), search) {
			return true
		}
	}
	return false
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := s.productWithVariantsLocked(p, true)
	return &product, nil
}

// GetVariants returns the sellable variants among ids: active variants of
// active products. Unknown or inactive ids are absent from the result.
func (s *Store) GetVariants(_ context.Context, ids []int64) (map[int64]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Variant, len(ids))
	for _, id := range ids {
		v, ok := s.variants[id]
		if !ok || !v.Active || !s.products[v.ProductID].Active {
			continue
		}
		result[id] = v
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateProductLocked(product, 0); err != nil {
		return nil, err
	}

	s.nextID++
	product.ID = s.nextID
	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	for _, v := range product.Variants {
		s.nextID++
		v.ID = s.nextID
		v.ProductID = product.ID
		v.Active = true
		s.variants[v.ID] = v
	}
	product.Variants = nil
	s.products[product.ID] = product

	created := s.productWithVariantsLocked(product, true)
	return &created, nil
}

// UpdateProduct rewrites product fields and variant attributes. Stock of an
// existing variant is owned by the stock ledger and is left untouched;
// variants missing from the update are deactivated, never removed.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.validateProductLocked(product, product.ID); err != nil {
		return nil, err
	}
	for _, v := range product.Variants {
		if v.ID == 0 {
			continue
		}
		existing, ok := s.variants[v.ID]
		if !ok || existing.ProductID != product.ID {
			return nil, fmt.Errorf("%w: variant %d does not belong to product %d", store.ErrInvalidInput, v.ID, product.ID)
		}
	}

	kept := map[int64]bool{}
	for _, v := range product.Variants {
		if v.ID == 0 {
			s.nextID++
			v.ID = s.nextID
			v.ProductID = product.ID
			v.Active = true
			s.variants[v.ID] = v
			kept[v.ID] = true
			continue
		}
		existing := s.variants[v.ID]
		existing.SKU = v.SKU
		existing.Size = v.Size
		existing.Color = v.Color
		existing.Style = v.Style
		existing.Price = v.Price
		existing.MinStock = v.MinStock
		existing.Active = true
		s.variants[v.ID] = existing
		kept[v.ID] = true
	}
	for id, v := range s.variants {
		if v.ProductID == product.ID && !kept[id] {
			v.Active = false
			s.variants[id] = v
		}
	}

	current.Code = product.Code
	current.Name = product.Name
	current.Description = product.Description
	current.CategoryID = product.CategoryID
	current.SupplierID = product.SupplierID
	s.products[current.ID] = current

	updated := s.productWithVariantsLocked(current, true)
	return &updated, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Active = false
	s.products[id] = p
	for vid, v := range s.variants {
		if v.ProductID == id {
			v.Active = false
			s.variants[vid] = v
		}
	}
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if c.Active {
			categories = append(categories, c)
		}
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		if sup.Active {
			suppliers = append(suppliers, sup)
		}
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	supplier.ID = s.nextID
	supplier.Active = true
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ReserveAndDecrement(_ context.Context, variantID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reserveLocked(variantID, qty)
}

// reserveLocked is the single stock decrement of the ledger. The caller holds
// s.mu for writing.
func (s *Store) reserveLocked(variantID int64, qty int) error {
	v, ok := s.variants[variantID]
	if !ok {
		return store.ErrNotFound
	}
	if v.Stock < qty {
		return &store.InsufficientStockError{VariantID: variantID, Requested: qty, Available: v.Stock}
	}
	v.Stock -= qty
	s.variants[variantID] = v
	return nil
}

func (s *Store) Increment(_ context.Context, variantID int64, qty int) error {
	if qty < 1 || qty > store.MaxStockIncrement {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[variantID]
	if !ok {
		return store.ErrNotFound
	}
	v.Stock += qty
	s.variants[variantID] = v
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 || strings.TrimSpace(sale.TicketNumber) == "" {
		return nil, store.ErrInvalidInput
	}
	if sale.IdempotencyKey != "" {
		if _, exists := s.saleIDsByIdem[sale.IdempotencyKey]; exists {
			return nil, store.ErrIdempotencyKeyUsed
		}
	}
	if _, exists := s.saleIDsByTicket[sale.TicketNumber]; exists {
		return nil, store.ErrDuplicateTicket
	}

	// Validate every line before touching stock so a failure leaves no trace.
	needed := map[int64]int{}
	for _, line := range sale.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		v, ok := s.variants[line.VariantID]
		if !ok || !v.Active || !s.products[v.ProductID].Active {
			return nil, fmt.Errorf("variant %d: %w", line.VariantID, store.ErrNotFound)
		}
		if v.Price != line.UnitPrice {
			return nil, fmt.Errorf("variant %d: %w", line.VariantID, store.ErrPriceMismatch)
		}
		needed[line.VariantID] += line.Quantity
		if v.Stock < needed[line.VariantID] {
			return nil, &store.InsufficientStockError{VariantID: line.VariantID, Requested: needed[line.VariantID], Available: v.Stock}
		}
	}
	for variantID, qty := range needed {
		if err := s.reserveLocked(variantID, qty); err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleCompleted
	}
	lines := make([]domain.SaleLine, len(sale.Lines))
	for i, line := range sale.Lines {
		s.nextID++
		lines[i] = domain.SaleLine{
			ID:        s.nextID,
			SaleID:    sale.ID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Discount:  line.Discount,
		}
	}
	sale.Lines = lines

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	s.saleIDsByTicket[sale.TicketNumber] = sale.ID
	if sale.IdempotencyKey != "" {
		s.saleIDsByIdem[sale.IdempotencyKey] = sale.ID
	}
	return s.readSaleLocked(saved), nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.readSaleLocked(sale), nil
}

func (s *Store) FindSaleByIdempotencyKey(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.saleIDsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.readSaleLocked(s.salesByID[id]), nil
}

func (s *Store) CancelSale(_ context.Context, id string, note string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	for _, line := range sale.Lines {
		v, ok := s.variants[line.VariantID]
		if !ok {
			return nil, fmt.Errorf("restore variant %d: %w", line.VariantID, store.ErrNotFound)
		}
		v.Stock += line.Quantity
		s.variants[line.VariantID] = v
	}

	sale.Status = domain.SaleCancelled
	sale.Notes = appendNote(sale.Notes, note)
	cancelledAt := at.UTC()
	sale.CancelledAt = &cancelledAt
	return s.readSaleLocked(sale), nil
}

func (s *Store) ListSales(_ context.Context, query store.SaleQuery) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.salesByID {
		if !query.From.IsZero() && sale.CreatedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && !sale.CreatedAt.Before(query.To) {
			continue
		}
		if query.SellerID != 0 && sale.SellerID != query.SellerID {
			continue
		}
		if query.Status != "" && sale.Status != query.Status {
			continue
		}
		if query.PaymentMethod != "" && sale.PaymentMethod != query.PaymentMethod {
			continue
		}
		result = append(result, *s.readSaleLocked(sale))
	}

	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.TicketNumber, a.TicketNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDsByName[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.userIDsByName[username]; exists {
		return nil, store.ErrConflict
	}
	role, ok := s.rolesByName[user.RoleName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, user.RoleName)
	}

	s.nextID++
	user.ID = s.nextID
	user.Username = username
	user.RoleID = role.ID
	user.Permissions = role.Permissions
	user.Active = true
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	s.userIDsByName[username] = user.ID
	created := user
	return &created, nil
}

func (s *Store) GetRoleByName(_ context.Context, name string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.rolesByName[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &role, nil
}

func (s *Store) validateProductLocked(product domain.Product, selfID int64) error {
	if strings.TrimSpace(product.Code) == "" || strings.TrimSpace(product.Name) == "" || len(product.Variants) == 0 {
		return store.ErrInvalidInput
	}
	if c, ok := s.categories[product.CategoryID]; !ok || !c.Active {
		return fmt.Errorf("%w: unknown category %d", store.ErrInvalidInput, product.CategoryID)
	}
	if product.SupplierID != 0 {
		if _, ok := s.suppliers[product.SupplierID]; !ok {
			return fmt.Errorf("%w: unknown supplier %d", store.ErrInvalidInput, product.SupplierID)
		}
	}
	for _, p := range s.products {
		if p.ID != selfID && strings.EqualFold(p.Code, product.Code) {
			return fmt.Errorf("%w: product code %s", store.ErrConflict, product.Code)
		}
	}

	skus := map[string]bool{}
	for _, v := range product.Variants {
		sku := strings.ToUpper(strings.TrimSpace(v.SKU))
		if sku == "" || v.Price < 1 || v.Stock < 0 || v.MinStock < 0 {
			return store.ErrInvalidInput
		}
		if skus[sku] {
			return fmt.Errorf("%w: duplicate sku %s", store.ErrConflict, v.SKU)
		}
		skus[sku] = true
	}
	for id, v := range s.variants {
		if !skus[strings.ToUpper(v.SKU)] {
			continue
		}
		if selfID != 0 && v.ProductID == selfID && variantListed(product.Variants, id, v.SKU) {
			continue
		}
		return fmt.Errorf("%w: sku %s", store.ErrConflict, v.SKU)
	}
	return nil
}

// variantListed reports whether the update keeps the existing variant id
// under the same sku.
func variantListed(variants []domain.Variant, id int64, sku string) bool {
	for _, v := range variants {
		if v.ID == id && strings.EqualFold(v.SKU, sku) {
			return true
		}
	}
	return false
}

func (s *Store) productWithVariantsLocked(p domain.Product, includeInactive bool) domain.Product {
	p.CategoryName = s.categories[p.CategoryID].Name
	p.SupplierName = s.suppliers[p.SupplierID].Name
	p.Variants = make([]domain.Variant, 0, 4)
	for _, v := range s.variants {
		if v.ProductID != p.ID || (!v.Active && !includeInactive) {
			continue
		}
		p.Variants = append(p.Variants, v)
	}
	slices.SortFunc(p.Variants, func(a, b domain.Variant) int {
		return strings.Compare(a.SKU, b.SKU)
	})
	return p
}

// readSaleLocked clones a stored sale and fills the descriptive line and
// seller fields from the catalog.
func (s *Store) readSaleLocked(src *domain.Sale) *domain.Sale {
	sale := cloneSale(src)
	if seller, ok := s.usersByID[sale.SellerID]; ok {
		sale.SellerName = seller.FullName
	}
	for i := range sale.Lines {
		line := &sale.Lines[i]
		v := s.variants[line.VariantID]
		p := s.products[v.ProductID]
		line.ProductID = p.ID
		line.ProductName = p.Name
		line.SKU = v.SKU
		line.Size = v.Size
		line.Color = v.Color
		line.CategoryID = p.CategoryID
		line.CategoryName = s.categories[p.CategoryID].Name
	}
	return sale
}

func appendNote(notes string, note string) string {
	if strings.TrimSpace(notes) == "" {
		return note
	}
	return notes + "\n" + note
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	lines := make([]domain.SaleLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return &dup
}
