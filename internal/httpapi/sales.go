package httpapi

import (
	"net/http"
	"strings"

	"sanjoseboots/backend/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createSale(w, r)
	case http.MethodGet:
		a.listSales(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) createSale(w http.ResponseWriter, r *http.Request) {
	if !a.permit(w, r, domain.ResourceSales, domain.ActionCreate) {
		return
	}

	var req domain.CreateSaleRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyHeader))
	}

	resp, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) listSales(w http.ResponseWriter, r *http.Request) {
	if !a.permit(w, r, domain.ResourceSales, domain.ActionRead) {
		return
	}
	q, err := reportQuery(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	q.Limit = parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000)

	sales, err := a.service.ListSales(r.Context(), q)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales, "count": len(sales)})
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceSales, domain.ActionRead) {
		return
	}

	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceSales, domain.ActionCancel) {
		return
	}

	var req domain.CancelSaleRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	resp, err := a.service.CancelSale(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceSales, domain.ActionRead) {
		return
	}

	summary, err := a.service.DailySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeReport(w, r, "daily-summary", summary, dailySummaryTable(summary))
}
