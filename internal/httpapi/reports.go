package httpapi

import (
	"net/http"
	"strings"

	"sanjoseboots/backend/internal/domain"
)

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceReports, domain.ActionRead) {
		return
	}

	name := r.PathValue("name")
	q, err := reportQuery(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	ctx := r.Context()

	switch name {
	case "daily-sales":
		days, err := a.service.DailySales(ctx, q)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.writeReport(w, r, name, map[string]any{"days": days}, dailySalesTable(days))
	case "top-products":
		products, err := a.service.TopProducts(ctx, q)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.writeReport(w, r, name, map[string]any{"products": products}, topProductsTable(products))
	case "sales-by-category":
		categories, err := a.service.SalesByCategory(ctx, q)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.writeReport(w, r, name, map[string]any{"categories": categories}, categorySalesTable(categories))
	case "payment-methods":
		methods, err := a.service.SalesByPaymentMethod(ctx, q)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.writeReport(w, r, name, map[string]any{"paymentMethods": methods}, paymentMethodsTable(methods))
	case "sellers":
		sellers, err := a.service.SellerPerformance(ctx, q)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.writeReport(w, r, name, map[string]any{"sellers": sellers}, sellersTable(sellers))
	case "inventory":
		iq := domain.InventoryQuery{
			CategoryID:   q.CategoryID,
			LowStockOnly: parseBool(r.URL.Query().Get("lowStockOnly")),
		}
		if iq.SupplierID, err = queryID(r, "supplierId"); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		valuation, err := a.service.InventoryValuation(ctx, iq)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.writeReport(w, r, name, valuation, inventoryTable(valuation))
	case "dashboard":
		dashboard, err := a.service.Dashboard(ctx)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.writeReport(w, r, name, dashboard, dashboardTable(dashboard))
	default:
		writeError(w, http.StatusNotFound, errUnknownReport(name))
	}
}

// reportQuery reads the filters shared by sale listings and reports.
func reportQuery(r *http.Request) (domain.ReportQuery, error) {
	values := r.URL.Query()
	q := domain.ReportQuery{
		Start:         values.Get("start"),
		End:           values.Get("end"),
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(values.Get("paymentMethod"))),
		Status:        domain.SaleStatus(strings.TrimSpace(values.Get("status"))),
		Limit:         parsePositiveLimit(values.Get("limit"), 0, 0),
		GroupBy:       domain.Period(strings.TrimSpace(values.Get("groupBy"))),
	}
	var err error
	if q.SellerID, err = queryID(r, "sellerId"); err != nil {
		return domain.ReportQuery{}, err
	}
	if q.CategoryID, err = queryID(r, "categoryId"); err != nil {
		return domain.ReportQuery{}, err
	}
	return q, nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

type errUnknownReport string

func (e errUnknownReport) Error() string {
	return "unknown report " + string(e)
}
