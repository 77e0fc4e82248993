package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/store"
)

func (s *Store) ReserveAndDecrement(ctx context.Context, variantID int64, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}
	_, err := decrementStock(ctx, s.db, variantID, qty, false)
	return err
}

func (s *Store) Increment(ctx context.Context, variantID int64, qty int) error {
	if qty < 1 || qty > store.MaxStockIncrement {
		return store.ErrInvalidInput
	}
	return incrementStock(ctx, s.db, variantID, qty)
}

// decrementStock is a conditional update: it succeeds only while stock
// covers qty, so concurrent callers can never drive stock negative. On
// success it returns the variant's current price. sellable restricts the
// update to active variants of active products.
func decrementStock(ctx context.Context, q querier, variantID int64, qty int, sellable bool) (domain.Money, error) {
	var price int64
	err := q.QueryRowContext(ctx, `
		UPDATE product_variants v
		SET stock = v.stock - $1
		FROM products p
		WHERE v.id = $2 AND p.id = v.product_id AND v.stock >= $1
			AND (NOT $3 OR (v.active = true AND p.active = true))
		RETURNING v.price_cents
	`, qty, variantID, sellable).Scan(&price)
	if err == nil {
		return domain.Money(price), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var stock int
	var active bool
	err = q.QueryRowContext(ctx, `
		SELECT v.stock, v.active AND p.active
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1
	`, variantID).Scan(&stock, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("variant %d: %w", variantID, store.ErrNotFound)
		}
		return 0, err
	}
	if sellable && !active {
		return 0, fmt.Errorf("variant %d: %w", variantID, store.ErrNotFound)
	}
	return 0, &store.InsufficientStockError{VariantID: variantID, Requested: qty, Available: stock}
}

func incrementStock(ctx context.Context, q querier, variantID int64, qty int) error {
	res, err := q.ExecContext(ctx, `UPDATE product_variants SET stock = stock + $1 WHERE id = $2`, qty, variantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("variant %d: %w", variantID, store.ErrNotFound)
	}
	return nil
}

// CreateSale decrements stock per variant and inserts the sale and its lines
// in one transaction. Variants are decremented in id order so concurrent
// sales lock rows in a consistent order.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || strings.TrimSpace(sale.TicketNumber) == "" {
		return nil, store.ErrInvalidInput
	}
	needed := map[int64]int{}
	variantIDs := make([]int64, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, seen := needed[line.VariantID]; !seen {
			variantIDs = append(variantIDs, line.VariantID)
		}
		needed[line.VariantID] += line.Quantity
	}
	slices.Sort(variantIDs)

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleCompleted
	}

	pgTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	prices := make(map[int64]domain.Money, len(variantIDs))
	for _, variantID := range variantIDs {
		price, err := decrementStock(ctx, pgTx, variantID, needed[variantID], true)
		if err != nil {
			return nil, err
		}
		prices[variantID] = price
	}
	for _, line := range sale.Lines {
		if prices[line.VariantID] != line.UnitPrice {
			return nil, fmt.Errorf("variant %d: %w", line.VariantID, store.ErrPriceMismatch)
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, ticket_number, idempotency_key, seller_id,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			payment_method, status, notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.TicketNumber, nullIfEmpty(sale.IdempotencyKey), sale.SellerID,
		int64(sale.Subtotal), int64(sale.Discount), int64(sale.Tax), int64(sale.Total),
		string(sale.PaymentMethod), string(sale.Status), sale.Notes, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			switch violatedConstraint(err) {
			case ticketConstraint:
				return nil, store.ErrDuplicateTicket
			case idempotencyConstraint:
				return nil, store.ErrIdempotencyKeyUsed
			}
		}
		return nil, err
	}

	lines := make([]domain.SaleLine, len(sale.Lines))
	for i, line := range sale.Lines {
		var lineID int64
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO sale_lines (sale_id, variant_id, quantity, unit_price_cents, discount_cents)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, sale.ID, line.VariantID, line.Quantity, int64(line.UnitPrice), int64(line.Discount)).Scan(&lineID)
		if err != nil {
			return nil, err
		}
		lines[i] = domain.SaleLine{
			ID:        lineID,
			SaleID:    sale.ID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Discount:  line.Discount,
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	sale.Lines = lines
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

const saleColumns = `
	SELECT s.id, s.ticket_number, COALESCE(s.idempotency_key, ''), s.seller_id, COALESCE(u.full_name, ''),
		s.subtotal_cents, s.discount_cents, s.tax_cents, s.total_cents,
		s.payment_method, s.status, s.notes, s.created_at, s.cancelled_at
	FROM sales s
	LEFT JOIN users u ON u.id = s.seller_id
`

const lineColumns = `
	SELECT l.id, l.sale_id, l.variant_id, l.quantity, l.unit_price_cents, l.discount_cents,
		p.id, p.name, v.sku, v.size, v.color, c.id, c.name
	FROM sale_lines l
	JOIN product_variants v ON v.id = l.variant_id
	JOIN products p ON p.id = v.product_id
	JOIN categories c ON c.id = p.category_id
`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var subtotal, discount, tax, total int64
	var paymentMethod, status string
	var cancelledAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.TicketNumber, &sale.IdempotencyKey, &sale.SellerID, &sale.SellerName,
		&subtotal, &discount, &tax, &total, &paymentMethod, &status, &sale.Notes, &sale.CreatedAt, &cancelledAt)
	if err != nil {
		return sale, err
	}
	sale.Subtotal = domain.Money(subtotal)
	sale.Discount = domain.Money(discount)
	sale.Tax = domain.Money(tax)
	sale.Total = domain.Money(total)
	sale.PaymentMethod = domain.PaymentMethod(paymentMethod)
	sale.Status = domain.SaleStatus(status)
	sale.CreatedAt = sale.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}
	return sale, nil
}

func scanLine(row interface{ Scan(...any) error }) (domain.SaleLine, error) {
	var line domain.SaleLine
	var unitPrice, discount int64
	err := row.Scan(&line.ID, &line.SaleID, &line.VariantID, &line.Quantity, &unitPrice, &discount,
		&line.ProductID, &line.ProductName, &line.SKU, &line.Size, &line.Color, &line.CategoryID, &line.CategoryName)
	line.UnitPrice = domain.Money(unitPrice)
	line.Discount = domain.Money(discount)
	return line, err
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	return s.findSale(ctx, s.db, "s.id = $1", id)
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return s.findSale(ctx, s.db, "s.idempotency_key = $1", key)
}

func (s *Store) findSale(ctx context.Context, q querier, where string, value string) (*domain.Sale, error) {
	sale, err := scanSale(q.QueryRowContext(ctx, saleColumns+` WHERE `+where, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, lineColumns+` WHERE l.sale_id = $1 ORDER BY l.id`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sale.Lines = make([]domain.SaleLine, 0, 4)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// CancelSale locks the sale row, restores stock for every line and flips the
// status. A sale already cancelled is left untouched.
func (s *Store) CancelSale(ctx context.Context, id string, note string, at time.Time) (*domain.Sale, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}

	pgTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `SELECT status FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if domain.SaleStatus(status) == domain.SaleCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT variant_id, SUM(quantity)
		FROM sale_lines
		WHERE sale_id = $1
		GROUP BY variant_id
		ORDER BY variant_id
	`, id)
	if err != nil {
		return nil, err
	}
	type restore struct {
		variantID int64
		qty       int
	}
	restores := make([]restore, 0, 4)
	for rows.Next() {
		var r restore
		if err := rows.Scan(&r.variantID, &r.qty); err != nil {
			_ = rows.Close()
			return nil, err
		}
		restores = append(restores, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, r := range restores {
		if err := incrementStock(ctx, pgTx, r.variantID, r.qty); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2,
			notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
			cancelled_at = $4
		WHERE id = $1
	`, id, string(domain.SaleCancelled), note, at.UTC())
	if err != nil {
		return nil, err
	}

	cancelled, err := s.findSale(ctx, pgTx, "s.id = $1", id)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ListSales loads the matching sales and then all their lines in a second
// query sharing the same filter.
func (s *Store) ListSales(ctx context.Context, query store.SaleQuery) ([]domain.Sale, error) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(cond string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if !query.From.IsZero() {
		add("s.created_at >= $%d", query.From.UTC())
	}
	if !query.To.IsZero() {
		add("s.created_at < $%d", query.To.UTC())
	}
	if query.SellerID != 0 {
		add("s.seller_id = $%d", query.SellerID)
	}
	if query.Status != "" {
		add("s.status = $%d", string(query.Status))
	}
	if query.PaymentMethod != "" {
		add("s.payment_method = $%d", string(query.PaymentMethod))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	order := " ORDER BY s.created_at DESC, s.ticket_number DESC"
	if query.Limit > 0 {
		order += fmt.Sprintf(" LIMIT %d", query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, saleColumns+where+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	index := map[string]int{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sale.Lines = make([]domain.SaleLine, 0, 4)
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	lineRows, err := s.db.QueryContext(ctx, lineColumns+`
		WHERE l.sale_id IN (SELECT s.id FROM sales s`+where+order+`)
		ORDER BY l.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		line, err := scanLine(lineRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[line.SaleID]; ok {
			sales[i].Lines = append(sales[i].Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}
