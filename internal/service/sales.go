package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/pricing"
	"sanjoseboots/backend/internal/store"
	"sanjoseboots/backend/internal/xid"
)

const (
	defaultSaleListLimit = 200
	maxSaleListLimit     = 1000
)

// CreateSale records a sale for the authenticated seller. Prices always come
// from the catalog; client prices and totals are only checked against them.
// Stock decrements and the sale write happen in one unit of work in the
// store, so a failed call leaves stock untouched.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.CreateSaleResponse, error) {
	actor, err := s.authorize(ctx, domain.ResourceSales, domain.ActionCreate)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	sellerID := actor.UserID
	if req.SellerID != 0 && req.SellerID != actor.UserID {
		if actor.Role != domain.RoleAdmin {
			return domain.CreateSaleResponse{}, fmt.Errorf("%w: sales can only be recorded for yourself", ErrForbidden)
		}
		if _, err := s.repo.GetUser(ctx, req.SellerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.CreateSaleResponse{}, validationError("unknown seller %d", req.SellerID)
			}
			return domain.CreateSaleResponse{}, err
		}
		sellerID = req.SellerID
	}

	if !req.PaymentMethod.Valid() {
		return domain.CreateSaleResponse{}, validationError("unsupported payment method %q", req.PaymentMethod)
	}
	notes := strings.TrimSpace(req.Notes)
	if len(notes) > 500 {
		return domain.CreateSaleResponse{}, validationError("notes must be at most 500 characters")
	}

	// A retry replays the recorded sale even when stock or prices have moved
	// since the first attempt.
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindSaleByIdempotencyKey(ctx, key)
		if err == nil {
			return toCreateSaleResponse(existing, replayChange(existing, req), true), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.CreateSaleResponse{}, err
		}
	}

	cart, err := mergeCartLines(req.Lines)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	ids := make([]int64, 0, len(cart))
	for _, line := range cart {
		ids = append(ids, line.VariantID)
	}
	variants, err := s.repo.GetVariants(ctx, ids)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	priced := make([]pricing.Line, 0, len(cart))
	gross := make([]decimal.Decimal, 0, len(cart))
	for _, line := range cart {
		variant, ok := variants[line.VariantID]
		if !ok {
			return domain.CreateSaleResponse{}, fmt.Errorf("variant %d: %w", line.VariantID, store.ErrNotFound)
		}
		if line.UnitPrice > 0 && !pricing.Reconcile(variant.Price.Decimal(), line.UnitPrice.Decimal(), pricing.OneCent) {
			return domain.CreateSaleResponse{}, fmt.Errorf("%w: variant %d costs %s, cart shows %s",
				store.ErrPriceMismatch, variant.ID, variant.Price, line.UnitPrice)
		}
		// Early refusal only; the store re-checks under its own atomic decrement.
		if variant.Stock < line.Quantity {
			return domain.CreateSaleResponse{}, &store.InsufficientStockError{
				VariantID: variant.ID,
				Requested: line.Quantity,
				Available: variant.Stock,
			}
		}
		priced = append(priced, pricing.Line{Quantity: line.Quantity, UnitPrice: variant.Price.Decimal()})
		gross = append(gross, variant.Price.Decimal().Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	totals, err := s.calc.Compute(priced, req.Discount.Decimal())
	if err != nil {
		if errors.Is(err, pricing.ErrEmptyCart) {
			return domain.CreateSaleResponse{}, err
		}
		return domain.CreateSaleResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.ClientTotal != nil && !pricing.Reconcile(totals.Total, req.ClientTotal.Decimal(), pricing.OneCent) {
		s.log(ctx).Warn("client total does not match computed total",
			zap.String("client_total", req.ClientTotal.String()),
			zap.String("total", totals.Total.StringFixed(2)),
		)
		return domain.CreateSaleResponse{}, fmt.Errorf("%w: total is %s, cart shows %s",
			store.ErrPriceMismatch, totals.Total.StringFixed(2), req.ClientTotal.String())
	}

	total := domain.MoneyFromDecimal(totals.Total)
	change := domain.Money(0)
	if req.PaymentMethod == domain.PaymentCash && req.CashReceived > 0 {
		if req.CashReceived < total {
			return domain.CreateSaleResponse{}, validationError("cash received %s is less than total %s", req.CashReceived, total)
		}
		change = req.CashReceived - total
	}

	discounts := pricing.Allocate(totals.Discount, gross)
	lines := make([]domain.SaleLine, 0, len(cart))
	for i, line := range cart {
		lines = append(lines, domain.SaleLine{
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: variants[line.VariantID].Price,
			Discount:  domain.MoneyFromDecimal(discounts[i]),
		})
	}

	sale := domain.Sale{
		SellerID:      sellerID,
		Subtotal:      domain.MoneyFromDecimal(totals.Subtotal),
		Discount:      domain.MoneyFromDecimal(totals.Discount),
		Tax:           domain.MoneyFromDecimal(totals.Tax),
		Total:         total,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.SaleCompleted,
		Notes:         notes,
		Lines:         lines,
	}

	if key == "" {
		created, err := s.recordSale(ctx, sale)
		if err != nil {
			return domain.CreateSaleResponse{}, err
		}
		return toCreateSaleResponse(created, change, false), nil
	}

	claimed, err := s.idempotency.Claim(ctx, key, s.idempotencyTTL)
	if err != nil {
		// The unique key in the store still rejects a second sale.
		s.log(ctx).Warn("idempotency claim failed", zap.Error(err))
		claimed = true
	}
	if !claimed {
		if existing, err := s.repo.FindSaleByIdempotencyKey(ctx, key); err == nil {
			return toCreateSaleResponse(existing, change, true), nil
		}
		return domain.CreateSaleResponse{}, ErrIdempotencyInFlight
	}

	sale.IdempotencyKey = key
	created, err := s.recordSale(ctx, sale)
	if errors.Is(err, store.ErrIdempotencyKeyUsed) {
		existing, findErr := s.repo.FindSaleByIdempotencyKey(ctx, key)
		if findErr != nil {
			return domain.CreateSaleResponse{}, findErr
		}
		return toCreateSaleResponse(existing, change, true), nil
	}
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, key); releaseErr != nil {
			s.log(ctx).Warn("idempotency release failed", zap.Error(releaseErr))
		}
		return domain.CreateSaleResponse{}, err
	}
	return toCreateSaleResponse(created, change, false), nil
}

// recordSale writes the sale, drawing a fresh ticket number whenever the
// previous one collides.
func (s *Service) recordSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	var lastErr error
	for attempt := 1; attempt <= s.ticketRetries; attempt++ {
		now := s.now()
		sale.ID = uuid.NewString()
		sale.TicketNumber = xid.Ticket(now.In(s.location))
		sale.CreatedAt = now.UTC()

		created, err := s.repo.CreateSale(ctx, sale)
		if err == nil {
			s.invalidateReports(ctx)
			s.audit(ctx, "sale_create", "sale", created.ID,
				zap.String("ticket_number", created.TicketNumber),
				zap.Int64("seller_id", created.SellerID),
				zap.String("total", created.Total.String()),
				zap.String("payment_method", string(created.PaymentMethod)),
				zap.Int("lines", len(created.Lines)),
			)
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateTicket) {
			return nil, err
		}
		lastErr = err
		s.log(ctx).Warn("ticket number collision, regenerating",
			zap.String("ticket_number", sale.TicketNumber),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("after %d attempts: %w", s.ticketRetries, lastErr)
}

// mergeCartLines folds repeated variants into one line, keeping the order of
// first appearance.
func mergeCartLines(lines []domain.CartLine) ([]domain.CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	merged := make([]domain.CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for i, line := range lines {
		if line.VariantID <= 0 {
			return nil, validationError("line %d: variantId is required", i+1)
		}
		if line.Quantity <= 0 {
			return nil, validationError("line %d: quantity must be positive", i+1)
		}
		if line.UnitPrice < 0 {
			return nil, validationError("line %d: unitPrice must not be negative", i+1)
		}
		if pos, ok := index[line.VariantID]; ok {
			merged[pos].Quantity += line.Quantity
			if merged[pos].UnitPrice == 0 {
				merged[pos].UnitPrice = line.UnitPrice
			} else if line.UnitPrice != 0 && line.UnitPrice != merged[pos].UnitPrice {
				return nil, fmt.Errorf("%w: variant %d listed with two prices", store.ErrPriceMismatch, line.VariantID)
			}
			continue
		}
		index[line.VariantID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

// replayChange recomputes the change owed on a replayed cash sale from the
// recorded total.
func replayChange(sale *domain.Sale, req domain.CreateSaleRequest) domain.Money {
	if sale.PaymentMethod != domain.PaymentCash || req.CashReceived < sale.Total {
		return 0
	}
	return req.CashReceived - sale.Total
}

func toCreateSaleResponse(sale *domain.Sale, change domain.Money, duplicate bool) domain.CreateSaleResponse {
	return domain.CreateSaleResponse{
		SaleID:       sale.ID,
		TicketNumber: sale.TicketNumber,
		Status:       sale.Status,
		Subtotal:     sale.Subtotal,
		Discount:     sale.Discount,
		Tax:          sale.Tax,
		Total:        sale.Total,
		Change:       change,
		ItemCount:    int(sale.Units()),
		Duplicate:    duplicate,
		CreatedAt:    sale.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CancelSale flips a completed sale to cancelled and restores the stock of
// its lines in the same unit of work. A second cancellation fails with
// store.ErrAlreadyCancelled.
func (s *Service) CancelSale(ctx context.Context, saleID string, req domain.CancelSaleRequest) (domain.CancelSaleResponse, error) {
	actor, err := s.authorize(ctx, domain.ResourceSales, domain.ActionCancel)
	if err != nil {
		return domain.CancelSaleResponse{}, err
	}

	saleID = strings.TrimSpace(saleID)
	reason := strings.TrimSpace(req.Reason)
	if saleID == "" {
		return domain.CancelSaleResponse{}, validationError("sale id is required")
	}
	if reason == "" {
		return domain.CancelSaleResponse{}, validationError("cancellation reason is required")
	}
	if len(reason) > 500 {
		return domain.CancelSaleResponse{}, validationError("cancellation reason must be at most 500 characters")
	}
	if req.ActorID != 0 && req.ActorID != actor.UserID {
		return domain.CancelSaleResponse{}, validationError("actorId does not match the authenticated user")
	}

	at := s.now().UTC()
	note := fmt.Sprintf("[Cancelled %s by %s] %s", at.Format(time.RFC3339), actor.Username, reason)
	cancelled, err := s.repo.CancelSale(ctx, saleID, note, at)
	if err != nil {
		return domain.CancelSaleResponse{}, err
	}

	s.invalidateReports(ctx)
	s.audit(ctx, "sale_cancel", "sale", cancelled.ID,
		zap.String("ticket_number", cancelled.TicketNumber),
		zap.String("reason", reason),
		zap.Int64("units_restored", cancelled.Units()),
	)

	cancelledAt := at
	if cancelled.CancelledAt != nil {
		cancelledAt = *cancelled.CancelledAt
	}
	return domain.CancelSaleResponse{
		Success:     true,
		SaleID:      cancelled.ID,
		Status:      cancelled.Status,
		CancelledAt: cancelledAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	if _, err := s.authorize(ctx, domain.ResourceSales, domain.ActionRead); err != nil {
		return nil, err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return nil, validationError("sale id is required")
	}
	return s.repo.FindSaleByID(ctx, saleID)
}

func (s *Service) ListSales(ctx context.Context, query domain.ReportQuery) ([]domain.Sale, error) {
	if _, err := s.authorize(ctx, domain.ResourceSales, domain.ActionRead); err != nil {
		return nil, err
	}
	from, to, err := s.ParseRange(query.Start, query.End)
	if err != nil {
		return nil, err
	}
	if query.Status != "" && query.Status != domain.SaleCompleted && query.Status != domain.SaleCancelled && query.Status != domain.SalePending {
		return nil, validationError("unknown status %q", query.Status)
	}
	if query.PaymentMethod != "" && !query.PaymentMethod.Valid() {
		return nil, validationError("unsupported payment method %q", query.PaymentMethod)
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultSaleListLimit
	}
	if limit > maxSaleListLimit {
		limit = maxSaleListLimit
	}
	return s.repo.ListSales(ctx, store.SaleQuery{
		From:          from,
		To:            to,
		SellerID:      query.SellerID,
		Status:        query.Status,
		PaymentMethod: query.PaymentMethod,
		Limit:         limit,
	})
}

// DailySummary reports one store day: totals, sales per hour and the five
// best sellers.
func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	if _, err := s.authorize(ctx, domain.ResourceSales, domain.ActionRead); err != nil {
		return domain.DailySummary{}, err
	}
	from, to, err := s.ParseRange(date, date)
	if err != nil {
		return domain.DailySummary{}, err
	}

	var summary domain.DailySummary
	cacheKey := "daily-summary:" + from.Format(time.RFC3339)
	entry, hit := s.cachedReport(ctx, cacheKey, &summary)
	if hit {
		return summary, nil
	}

	sales, err := s.repo.ListSales(ctx, store.SaleQuery{From: from, To: to})
	if err != nil {
		return domain.DailySummary{}, err
	}

	hours := map[int]*domain.HourlySales{}
	for _, sale := range completed(sales) {
		hour := sale.CreatedAt.In(s.location).Hour()
		bucket, ok := hours[hour]
		if !ok {
			bucket = &domain.HourlySales{Hour: hour}
			hours[hour] = bucket
		}
		bucket.Sales++
		bucket.Revenue += sale.Total
	}
	byHour := make([]domain.HourlySales, 0, len(hours))
	for _, bucket := range hours {
		byHour = append(byHour, *bucket)
	}
	sort.Slice(byHour, func(i, j int) bool { return byHour[i].Hour < byHour[j].Hour })

	sellers := sellerPerformance(sales)
	if len(sellers) > 5 {
		sellers = sellers[:5]
	}

	summary = domain.DailySummary{
		Date:       from.In(s.location).Format(dateLayout),
		Summary:    totalsOf(sales),
		ByHour:     byHour,
		TopSellers: sellers,
	}
	s.storeReport(ctx, entry, summary)
	return summary, nil
}
