package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/store"
)

const productColumns = `
	SELECT p.id, p.code, p.name, p.description, p.category_id, c.name,
		COALESCE(p.supplier_id, 0), COALESCE(sup.name, ''), p.active, p.created_at
	FROM products p
	JOIN categories c ON c.id = p.category_id
	LEFT JOIN suppliers sup ON sup.id = p.supplier_id
`

const variantColumns = `
	SELECT v.id, v.product_id, v.sku, v.size, v.color, v.style,
		v.price_cents, v.stock, v.min_stock, v.active
	FROM product_variants v
`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.CategoryID, &p.CategoryName,
		&p.SupplierID, &p.SupplierName, &p.Active, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func scanVariant(row interface{ Scan(...any) error }) (domain.Variant, error) {
	var v domain.Variant
	var price int64
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Size, &v.Color, &v.Style, &price, &v.Stock, &v.MinStock, &v.Active)
	v.Price = domain.Money(price)
	return v, err
}

func (s *Store) ListProducts(ctx context.Context, query store.ProductQuery) ([]domain.Product, error) {
	search := strings.TrimSpace(query.Search)
	rows, err := s.db.QueryContext(ctx, productColumns+`
		WHERE ($1 OR p.active = true)
			AND ($2 = 0 OR p.category_id = $2)
			AND ($3 = 0 OR p.supplier_id = $3)
			AND ($4 = '' OR p.name ILIKE '%' || $4 || '%' OR p.code ILIKE '%' || $4 || '%'
				OR EXISTS (SELECT 1 FROM product_variants sv WHERE sv.product_id = p.id AND sv.sku ILIKE '%' || $4 || '%'))
		ORDER BY p.name, p.id
	`, query.IncludeInactive, query.CategoryID, query.SupplierID, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	ids := make([]int64, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return products, nil
	}

	variants, err := s.variantsByProduct(ctx, s.db, ids, query.IncludeInactive)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
		if products[i].Variants == nil {
			products[i].Variants = []domain.Variant{}
		}
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.getProduct(ctx, s.db, id)
}

func (s *Store) getProduct(ctx context.Context, q querier, id int64) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, productColumns+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	variants, err := s.variantsByProduct(ctx, q, []int64{id}, true)
	if err != nil {
		return nil, err
	}
	p.Variants = variants[id]
	if p.Variants == nil {
		p.Variants = []domain.Variant{}
	}
	return &p, nil
}

func (s *Store) variantsByProduct(ctx context.Context, q querier, productIDs []int64, includeInactive bool) (map[int64][]domain.Variant, error) {
	list, args := inList(2, productIDs)
	rows, err := q.QueryContext(ctx, variantColumns+`
		WHERE ($1 OR v.active = true) AND v.product_id IN (`+list+`)
		ORDER BY v.sku
	`, append([]any{includeInactive}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64][]domain.Variant, len(productIDs))
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		result[v.ProductID] = append(result[v.ProductID], v)
	}
	return result, rows.Err()
}

// GetVariants returns active variants of active products among ids.
func (s *Store) GetVariants(ctx context.Context, ids []int64) (map[int64]domain.Variant, error) {
	result := make(map[int64]domain.Variant, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	list, args := inList(1, ids)
	rows, err := s.db.QueryContext(ctx, variantColumns+`
		JOIN products p ON p.id = v.product_id
		WHERE v.active = true AND p.active = true AND v.id IN (`+list+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		result[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Code) == "" || strings.TrimSpace(product.Name) == "" || len(product.Variants) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var productID int64
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO products (code, name, description, category_id, supplier_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,true,now())
		RETURNING id
	`, product.Code, product.Name, product.Description, product.CategoryID, nullIfZero(product.SupplierID)).Scan(&productID)
	if err != nil {
		return nil, catalogWriteError(err)
	}

	for _, v := range product.Variants {
		if err := insertVariant(ctx, pgTx, productID, v); err != nil {
			return nil, err
		}
	}

	created, err := s.getProduct(ctx, pgTx, productID)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateProduct rewrites product and variant attributes. Stock of existing
// variants only moves through the stock ledger; variants left out of the
// update are deactivated.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Code) == "" || strings.TrimSpace(product.Name) == "" || len(product.Variants) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET code = $2, name = $3, description = $4, category_id = $5, supplier_id = $6
		WHERE id = $1
	`, product.ID, product.Code, product.Name, product.Description, product.CategoryID, nullIfZero(product.SupplierID))
	if err != nil {
		return nil, catalogWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}

	kept := make([]int64, 0, len(product.Variants))
	for _, v := range product.Variants {
		if v.ID == 0 {
			continue
		}
		res, err := pgTx.ExecContext(ctx, `
			UPDATE product_variants
			SET sku = $3, size = $4, color = $5, style = $6, price_cents = $7, min_stock = $8, active = true
			WHERE id = $1 AND product_id = $2
		`, v.ID, product.ID, v.SKU, v.Size, v.Color, v.Style, int64(v.Price), v.MinStock)
		if err != nil {
			return nil, catalogWriteError(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("%w: variant %d does not belong to product %d", store.ErrInvalidInput, v.ID, product.ID)
		}
		kept = append(kept, v.ID)
	}

	// Deactivate before inserting so new variants are not swept up.
	deactivate := `UPDATE product_variants SET active = false WHERE product_id = $1`
	args := []any{product.ID}
	if len(kept) > 0 {
		list, keptArgs := inList(2, kept)
		deactivate += ` AND id NOT IN (` + list + `)`
		args = append(args, keptArgs...)
	}
	if _, err := pgTx.ExecContext(ctx, deactivate, args...); err != nil {
		return nil, err
	}

	for _, v := range product.Variants {
		if v.ID != 0 {
			continue
		}
		if err := insertVariant(ctx, pgTx, product.ID, v); err != nil {
			return nil, err
		}
	}

	updated, err := s.getProduct(ctx, pgTx, product.ID)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func insertVariant(ctx context.Context, q querier, productID int64, v domain.Variant) error {
	if strings.TrimSpace(v.SKU) == "" || v.Price < 1 || v.Stock < 0 || v.MinStock < 0 {
		return store.ErrInvalidInput
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO product_variants (product_id, sku, size, color, style, price_cents, stock, min_stock, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true)
	`, productID, v.SKU, v.Size, v.Color, v.Style, int64(v.Price), v.Stock, v.MinStock)
	if err != nil {
		return catalogWriteError(err)
	}
	return nil
}

func catalogWriteError(err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", store.ErrConflict, violatedConstraint(err))
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, violatedConstraint(err))
	default:
		return err
	}
}

func (s *Store) DeactivateProduct(ctx context.Context, id int64) error {
	pgTx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `UPDATE products SET active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := pgTx.ExecContext(ctx, `UPDATE product_variants SET active = false WHERE product_id = $1`, id); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, active
		FROM categories
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Active); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact, phone, email, active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id
	`, supplier.Name, supplier.Contact, supplier.Phone, supplier.Email).Scan(&supplier.ID)
	if err != nil {
		return nil, catalogWriteError(err)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, phone, email, active
		FROM suppliers
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.Phone, &sup.Email, &sup.Active); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}
