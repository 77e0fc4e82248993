package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sanjoseboots/backend/internal/cache"
	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/pricing"
	"sanjoseboots/backend/internal/store"
)

const (
	dateLayout       = "2006-01-02"
	maxReportDays    = 366
	defaultTopLimit  = 10
	maxTopLimit      = 100
	dashboardTopSize = 5
)

var hundred = decimal.NewFromInt(100)

// ParseRange turns inclusive store-local calendar dates into the UTC
// half-open interval [start 00:00, end+1 day 00:00). Empty dates default to
// today, or to the other bound when only one is given.
func (s *Service) ParseRange(start string, end string) (time.Time, time.Time, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start == "" && end == "" {
		start = s.now().In(s.location).Format(dateLayout)
	}
	if start == "" {
		start = end
	}
	if end == "" {
		end = start
	}

	first, err := time.ParseInLocation(dateLayout, start, s.location)
	if err != nil {
		return time.Time{}, time.Time{}, validationError("start must be a YYYY-MM-DD date, got %q", start)
	}
	last, err := time.ParseInLocation(dateLayout, end, s.location)
	if err != nil {
		return time.Time{}, time.Time{}, validationError("end must be a YYYY-MM-DD date, got %q", end)
	}
	if last.Before(first) {
		return time.Time{}, time.Time{}, validationError("end %s is before start %s", end, start)
	}
	if last.Sub(first) > maxReportDays*24*time.Hour {
		return time.Time{}, time.Time{}, validationError("range may span at most %d days", maxReportDays)
	}

	to := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, s.location)
	return first.UTC(), to.UTC(), nil
}

// cachedReport looks the report up. The returned entry is what storeReport
// writes to; an empty entry means the cache is off or unreadable.
func (s *Service) cachedReport(ctx context.Context, key string, dest any) (cache.Entry, bool) {
	if s.reportCacheTTL <= 0 {
		return cache.Entry{}, false
	}
	entry, hit, err := s.reports.Get(ctx, key, dest)
	if err != nil {
		s.log(ctx).Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		return cache.Entry{}, false
	}
	return entry, hit
}

func (s *Service) storeReport(ctx context.Context, entry cache.Entry, value any) {
	if s.reportCacheTTL <= 0 || entry.Key == "" {
		return
	}
	if err := s.reports.Set(ctx, entry, value, s.reportCacheTTL); err != nil {
		s.log(ctx).Warn("report cache write failed", zap.String("key", entry.Key), zap.Error(err))
	}
}

func reportKey(name string, from time.Time, to time.Time, q domain.ReportQuery) string {
	return fmt.Sprintf("%s:%d:%d:s%d:p%s:c%d:l%d:g%s", name, from.Unix(), to.Unix(), q.SellerID, q.PaymentMethod, q.CategoryID, q.Limit, q.GroupBy)
}

// salesIn loads every sale of the range, cancelled ones included; each report
// picks the population it aggregates.
func (s *Service) salesIn(ctx context.Context, from time.Time, to time.Time, q domain.ReportQuery) ([]domain.Sale, error) {
	if q.PaymentMethod != "" && !q.PaymentMethod.Valid() {
		return nil, validationError("unsupported payment method %q", q.PaymentMethod)
	}
	return s.repo.ListSales(ctx, store.SaleQuery{
		From:          from,
		To:            to,
		SellerID:      q.SellerID,
		PaymentMethod: q.PaymentMethod,
	})
}

// buildReport runs one sales report over the requested range, serving it
// from the report cache when possible.
func buildReport[T any](ctx context.Context, s *Service, name string, q domain.ReportQuery, build func([]domain.Sale) T) (T, error) {
	var out T
	if _, err := s.authorize(ctx, domain.ResourceReports, domain.ActionRead); err != nil {
		return out, err
	}
	from, to, err := s.ParseRange(q.Start, q.End)
	if err != nil {
		return out, err
	}
	entry, hit := s.cachedReport(ctx, reportKey(name, from, to, q), &out)
	if hit {
		return out, nil
	}
	sales, err := s.salesIn(ctx, from, to, q)
	if err != nil {
		return out, err
	}
	out = build(sales)
	s.storeReport(ctx, entry, out)
	return out, nil
}

// DailySales groups completed sales by store-local day, week or month.
func (s *Service) DailySales(ctx context.Context, q domain.ReportQuery) ([]domain.DailySales, error) {
	period, err := parsePeriod(q.GroupBy)
	if err != nil {
		return nil, err
	}
	q.GroupBy = period
	return buildReport(ctx, s, "daily-sales", q, func(sales []domain.Sale) []domain.DailySales {
		return dailySales(sales, s.location, period)
	})
}

// parsePeriod also accepts the Spanish names used by the back office.
func parsePeriod(raw domain.Period) (domain.Period, error) {
	switch strings.ToLower(strings.TrimSpace(string(raw))) {
	case "", "day", "diario":
		return domain.PeriodDay, nil
	case "week", "semanal":
		return domain.PeriodWeek, nil
	case "month", "mensual":
		return domain.PeriodMonth, nil
	default:
		return "", validationError("groupBy must be day, week or month, got %q", raw)
	}
}

// periodStart returns the store-local first day of the bucket holding t.
func periodStart(t time.Time, period domain.Period) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case domain.PeriodWeek:
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case domain.PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

func (s *Service) TopProducts(ctx context.Context, q domain.ReportQuery) ([]domain.TopProduct, error) {
	return buildReport(ctx, s, "top-products", q, func(sales []domain.Sale) []domain.TopProduct {
		return topProducts(sales, q.CategoryID, topLimit(q.Limit))
	})
}

func (s *Service) SalesByCategory(ctx context.Context, q domain.ReportQuery) ([]domain.CategorySales, error) {
	return buildReport(ctx, s, "sales-by-category", q, func(sales []domain.Sale) []domain.CategorySales {
		return salesByCategory(sales, q.CategoryID)
	})
}

func (s *Service) SalesByPaymentMethod(ctx context.Context, q domain.ReportQuery) ([]domain.PaymentMethodSales, error) {
	return buildReport(ctx, s, "payment-methods", q, salesByPaymentMethod)
}

func (s *Service) SellerPerformance(ctx context.Context, q domain.ReportQuery) ([]domain.SellerPerformance, error) {
	return buildReport(ctx, s, "sellers", q, sellerPerformance)
}

func topLimit(limit int) int {
	if limit < 1 {
		return defaultTopLimit
	}
	if limit > maxTopLimit {
		return maxTopLimit
	}
	return limit
}

func completed(sales []domain.Sale) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if sale.Status == domain.SaleCompleted {
			out = append(out, sale)
		}
	}
	return out
}

func average(total domain.Money, count int64) domain.Money {
	if count == 0 {
		return 0
	}
	return domain.MoneyFromDecimal(total.Decimal().Div(decimal.NewFromInt(count)))
}

// lineRevenue splits the sale total over its lines in proportion to their
// net amounts, so line-level reports add up to the same revenue as
// sale-level ones.
func lineRevenue(sale domain.Sale) []domain.Money {
	weights := make([]decimal.Decimal, len(sale.Lines))
	for i, line := range sale.Lines {
		weights[i] = (line.Gross() - line.Discount).Decimal()
	}
	shares := pricing.Allocate(sale.Total.Decimal(), weights)
	out := make([]domain.Money, len(shares))
	for i, share := range shares {
		out[i] = domain.MoneyFromDecimal(share)
	}
	return out
}

// percentages returns each amount's share of the sum in percent. The shares
// always add up to exactly 100 unless the sum is zero.
func percentages(amounts []domain.Money) []decimal.Decimal {
	weights := make([]decimal.Decimal, len(amounts))
	sum := domain.Money(0)
	for i, amount := range amounts {
		weights[i] = amount.Decimal()
		sum += amount
	}
	if sum == 0 {
		out := make([]decimal.Decimal, len(amounts))
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}
	return pricing.Allocate(hundred, weights)
}

func totalsOf(sales []domain.Sale) domain.SalesTotals {
	var totals domain.SalesTotals
	for _, sale := range sales {
		if sale.Status == domain.SaleCancelled {
			totals.CancelledSales++
			continue
		}
		if sale.Status != domain.SaleCompleted {
			continue
		}
		totals.Sales++
		totals.Revenue += sale.Total
		totals.Tax += sale.Tax
		totals.UnitsSold += sale.Units()
	}
	totals.AverageTicket = average(totals.Revenue, totals.Sales)
	return totals
}

func dailySales(sales []domain.Sale, loc *time.Location, period domain.Period) []domain.DailySales {
	days := map[string]*domain.DailySales{}
	for _, sale := range completed(sales) {
		date := periodStart(sale.CreatedAt.In(loc), period).Format(dateLayout)
		day, ok := days[date]
		if !ok {
			day = &domain.DailySales{Date: date, Period: period}
			days[date] = day
		}
		day.Sales++
		day.Revenue += sale.Total
		day.UnitsSold += sale.Units()
	}

	out := make([]domain.DailySales, 0, len(days))
	for _, day := range days {
		day.AverageTicket = average(day.Revenue, day.Sales)
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func topProducts(sales []domain.Sale, categoryID int64, limit int) []domain.TopProduct {
	byVariant := map[int64]*domain.TopProduct{}
	for _, sale := range completed(sales) {
		shares := lineRevenue(sale)
		for i, line := range sale.Lines {
			if categoryID != 0 && line.CategoryID != categoryID {
				continue
			}
			item, ok := byVariant[line.VariantID]
			if !ok {
				item = &domain.TopProduct{
					VariantID:    line.VariantID,
					ProductID:    line.ProductID,
					ProductName:  line.ProductName,
					SKU:          line.SKU,
					Size:         line.Size,
					Color:        line.Color,
					CategoryName: line.CategoryName,
				}
				byVariant[line.VariantID] = item
			}
			item.Quantity += int64(line.Quantity)
			item.Revenue += shares[i]
		}
	}

	out := make([]domain.TopProduct, 0, len(byVariant))
	for _, item := range byVariant {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].VariantID < out[j].VariantID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func salesByCategory(sales []domain.Sale, categoryID int64) []domain.CategorySales {
	byCategory := map[int64]*domain.CategorySales{}
	for _, sale := range completed(sales) {
		shares := lineRevenue(sale)
		counted := map[int64]bool{}
		for i, line := range sale.Lines {
			if categoryID != 0 && line.CategoryID != categoryID {
				continue
			}
			bucket, ok := byCategory[line.CategoryID]
			if !ok {
				bucket = &domain.CategorySales{CategoryID: line.CategoryID, CategoryName: line.CategoryName}
				byCategory[line.CategoryID] = bucket
			}
			if !counted[line.CategoryID] {
				counted[line.CategoryID] = true
				bucket.Sales++
			}
			bucket.UnitsSold += int64(line.Quantity)
			bucket.Revenue += shares[i]
		}
	}

	out := make([]domain.CategorySales, 0, len(byCategory))
	for _, bucket := range byCategory {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].CategoryID < out[j].CategoryID
	})

	amounts := make([]domain.Money, len(out))
	for i := range out {
		amounts[i] = out[i].Revenue
	}
	for i, pct := range percentages(amounts) {
		out[i].Percentage = pct
	}
	return out
}

func salesByPaymentMethod(sales []domain.Sale) []domain.PaymentMethodSales {
	byMethod := map[domain.PaymentMethod]*domain.PaymentMethodSales{}
	for _, sale := range completed(sales) {
		bucket, ok := byMethod[sale.PaymentMethod]
		if !ok {
			bucket = &domain.PaymentMethodSales{PaymentMethod: sale.PaymentMethod}
			byMethod[sale.PaymentMethod] = bucket
		}
		bucket.Sales++
		bucket.Revenue += sale.Total
	}

	out := make([]domain.PaymentMethodSales, 0, len(byMethod))
	for _, bucket := range byMethod {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].PaymentMethod < out[j].PaymentMethod
	})

	amounts := make([]domain.Money, len(out))
	for i := range out {
		amounts[i] = out[i].Revenue
	}
	for i, pct := range percentages(amounts) {
		out[i].Percentage = pct
	}
	return out
}

func sellerPerformance(sales []domain.Sale) []domain.SellerPerformance {
	bySeller := map[int64]*domain.SellerPerformance{}
	for _, sale := range sales {
		seller, ok := bySeller[sale.SellerID]
		if !ok {
			seller = &domain.SellerPerformance{SellerID: sale.SellerID, SellerName: sale.SellerName}
			bySeller[sale.SellerID] = seller
		}
		seller.TotalSales++
		switch sale.Status {
		case domain.SaleCompleted:
			seller.CompletedSales++
			seller.Revenue += sale.Total
			seller.UnitsSold += sale.Units()
		case domain.SaleCancelled:
			seller.CancelledSales++
		}
	}

	out := make([]domain.SellerPerformance, 0, len(bySeller))
	for _, seller := range bySeller {
		seller.AverageTicket = average(seller.Revenue, seller.CompletedSales)
		out = append(out, *seller)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].SellerID < out[j].SellerID
	})
	return out
}

// StockLevel bands a variant's stock against its minimum. Variants without a
// minimum use the configured fallback threshold.
func (s *Service) StockLevel(stock int, minStock int) domain.StockLevel {
	if minStock <= 0 {
		minStock = s.lowStockFallback
	}
	switch {
	case stock <= 0:
		return domain.StockOut
	case stock <= minStock:
		return domain.StockLow
	case stock <= 2*minStock:
		return domain.StockMedium
	default:
		return domain.StockNormal
	}
}

func (s *Service) InventoryValuation(ctx context.Context, q domain.InventoryQuery) (domain.InventoryValuation, error) {
	if _, err := s.authorize(ctx, domain.ResourceReports, domain.ActionRead); err != nil {
		return domain.InventoryValuation{}, err
	}
	products, err := s.repo.ListProducts(ctx, store.ProductQuery{CategoryID: q.CategoryID, SupplierID: q.SupplierID})
	if err != nil {
		return domain.InventoryValuation{}, err
	}
	return s.valuate(products, q.LowStockOnly), nil
}

func (s *Service) valuate(products []domain.Product, lowStockOnly bool) domain.InventoryValuation {
	valuation := domain.InventoryValuation{
		Lines:      []domain.InventoryLine{},
		Categories: []domain.CategoryValuation{},
	}
	byCategory := map[int64]*domain.CategoryValuation{}
	order := []int64{}

	for _, product := range products {
		if !product.Active {
			continue
		}
		included := 0
		for _, variant := range product.Variants {
			if !variant.Active {
				continue
			}
			level := s.StockLevel(variant.Stock, variant.MinStock)
			if lowStockOnly && level != domain.StockOut && level != domain.StockLow {
				continue
			}
			value := variant.Price * domain.Money(variant.Stock)
			valuation.Lines = append(valuation.Lines, domain.InventoryLine{
				VariantID:    variant.ID,
				ProductID:    product.ID,
				ProductCode:  product.Code,
				ProductName:  product.Name,
				SKU:          variant.SKU,
				Size:         variant.Size,
				Color:        variant.Color,
				CategoryID:   product.CategoryID,
				CategoryName: product.CategoryName,
				SupplierName: product.SupplierName,
				Stock:        variant.Stock,
				MinStock:     variant.MinStock,
				UnitPrice:    variant.Price,
				Value:        value,
				Level:        level,
			})

			bucket, ok := byCategory[product.CategoryID]
			if !ok {
				bucket = &domain.CategoryValuation{CategoryID: product.CategoryID, CategoryName: product.CategoryName}
				byCategory[product.CategoryID] = bucket
				order = append(order, product.CategoryID)
			}
			bucket.Variants++
			bucket.Units += int64(variant.Stock)
			bucket.Value += value
			if included == 0 {
				bucket.Products++
				valuation.Products++
			}
			included++

			valuation.Variants++
			valuation.Units += int64(variant.Stock)
			valuation.Value += value
		}
	}

	for _, id := range order {
		valuation.Categories = append(valuation.Categories, *byCategory[id])
	}
	sort.Slice(valuation.Categories, func(i, j int) bool {
		return valuation.Categories[i].CategoryName < valuation.Categories[j].CategoryName
	})
	return valuation
}

// Dashboard gathers today's and this month's KPIs with the inventory snapshot.
// The three reads run concurrently.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	if _, err := s.authorize(ctx, domain.ResourceReports, domain.ActionRead); err != nil {
		return domain.Dashboard{}, err
	}

	now := s.now().In(s.location)
	today := now.Format(dateLayout)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location).Format(dateLayout)
	dayFrom, dayTo, err := s.ParseRange(today, today)
	if err != nil {
		return domain.Dashboard{}, err
	}
	monthFrom, _, err := s.ParseRange(monthStart, today)
	if err != nil {
		return domain.Dashboard{}, err
	}

	var dashboard domain.Dashboard
	cacheKey := fmt.Sprintf("dashboard:%d:%d", dayFrom.Unix(), monthFrom.Unix())
	entry, hit := s.cachedReport(ctx, cacheKey, &dashboard)
	if hit {
		return dashboard, nil
	}

	var (
		todaySales []domain.Sale
		monthSales []domain.Sale
		products   []domain.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		todaySales, err = s.repo.ListSales(gctx, store.SaleQuery{From: dayFrom, To: dayTo})
		return err
	})
	g.Go(func() error {
		var err error
		monthSales, err = s.repo.ListSales(gctx, store.SaleQuery{From: monthFrom, To: dayTo})
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.repo.ListProducts(gctx, store.ProductQuery{})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Dashboard{}, err
	}

	valuation := s.valuate(products, false)
	lowStock := 0
	for _, line := range valuation.Lines {
		if line.Level == domain.StockOut || line.Level == domain.StockLow {
			lowStock++
		}
	}

	dashboard = domain.Dashboard{
		Date:  today,
		Today: totalsOf(todaySales),
		Month: totalsOf(monthSales),
		Inventory: domain.InventorySnapshot{
			Products:         valuation.Products,
			Variants:         valuation.Variants,
			Units:            valuation.Units,
			Value:            valuation.Value,
			LowStockVariants: lowStock,
		},
		TopProducts: topProducts(monthSales, 0, dashboardTopSize),
	}
	s.storeReport(ctx, entry, dashboard)
	return dashboard, nil
}
