package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/logger"
)

var (
	storeLanguage = language.MustParse("es-MX")
	amountPrinter = message.NewPrinter(storeLanguage)
	titleCaser    = cases.Title(storeLanguage)
)

var reportTitles = map[string]string{
	"daily-sales":       "ventas diarias",
	"top-products":      "productos más vendidos",
	"sales-by-category": "ventas por categoría",
	"payment-methods":   "ventas por método de pago",
	"sellers":           "desempeño de vendedores",
	"inventory":         "valuación de inventario",
	"dashboard":         "tablero",
	"daily-summary":     "resumen del día",
}

// reportTable is the flat rendering shared by the CSV and printable exports.
type reportTable struct {
	Title       string
	GeneratedAt string
	Headers     []string
	Rows        [][]string
}

// writeReport answers with JSON unless format=csv or format=html asks for an
// export of the table.
func (a *API) writeReport(w http.ResponseWriter, r *http.Request, name string, payload any, table reportTable) {
	table.Title = titleCaser.String(reportTitles[name])
	table.GeneratedAt = time.Now().In(a.service.Location()).Format("2006-01-02 15:04")

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		body, err := reportToCSV(table)
		if err != nil {
			logger.FromContext(r.Context()).Error("csv export failed", zap.String("report", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(name, r)))
		_, _ = w.Write(body)
	case "html", "pdf":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(reportToPrintableHTML(table)))
	case "", "json":
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", r.URL.Query().Get("format")))
	}
}

func exportFilename(name string, r *http.Request) string {
	parts := []string{name}
	for _, key := range []string{"start", "end", "date"} {
		if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "_") + ".csv"
}

func reportToCSV(table reportTable) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(table.Headers); err != nil {
		return nil, err
	}
	if err := writer.WriteAll(table.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reportHTMLTmpl renders printable reports. Cell values are escaped by
// html/template.
var reportHTMLTmpl = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="es">
<head>
  <meta charset="utf-8" />
  <title>{{.Title}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    th { background: #f4f4f4; text-align: left; }
    h2 { margin-bottom: 4px; }
    @media print { body { margin: 0; } }
  </style>
</head>
<body>
  <h2>San José Boots · {{.Title}}</h2>
  <p>Generado: {{.GeneratedAt}}</p>
  <table>
    <thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
    <tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func reportToPrintableHTML(table reportTable) string {
	var buf bytes.Buffer
	if err := reportHTMLTmpl.Execute(&buf, table); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

// formatMoney renders cents as a peso amount with locale digit grouping,
// e.g. $1,234.50.
func formatMoney(m domain.Money) string {
	cents := int64(m)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, amountPrinter.Sprintf("%d", cents/100), cents%100)
}

func formatCount[T ~int | ~int64](n T) string {
	return amountPrinter.Sprintf("%d", int64(n))
}

func formatPercent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

func dailySalesTable(days []domain.DailySales) reportTable {
	t := reportTable{Headers: []string{"Periodo", "Ventas", "Unidades", "Ingresos", "Ticket promedio"}}
	for _, d := range days {
		t.Rows = append(t.Rows, []string{d.Date, formatCount(d.Sales), formatCount(d.UnitsSold), formatMoney(d.Revenue), formatMoney(d.AverageTicket)})
	}
	return t
}

func topProductsTable(products []domain.TopProduct) reportTable {
	t := reportTable{Headers: []string{"SKU", "Producto", "Talla", "Color", "Categoría", "Unidades", "Ingresos"}}
	for _, p := range products {
		t.Rows = append(t.Rows, []string{p.SKU, p.ProductName, p.Size, p.Color, p.CategoryName, formatCount(p.Quantity), formatMoney(p.Revenue)})
	}
	return t
}

func categorySalesTable(categories []domain.CategorySales) reportTable {
	t := reportTable{Headers: []string{"Categoría", "Ventas", "Unidades", "Ingresos", "Porcentaje"}}
	for _, c := range categories {
		t.Rows = append(t.Rows, []string{c.CategoryName, formatCount(c.Sales), formatCount(c.UnitsSold), formatMoney(c.Revenue), formatPercent(c.Percentage)})
	}
	return t
}

func paymentMethodsTable(methods []domain.PaymentMethodSales) reportTable {
	t := reportTable{Headers: []string{"Método de pago", "Ventas", "Ingresos", "Porcentaje"}}
	for _, m := range methods {
		t.Rows = append(t.Rows, []string{string(m.PaymentMethod), formatCount(m.Sales), formatMoney(m.Revenue), formatPercent(m.Percentage)})
	}
	return t
}

func sellersTable(sellers []domain.SellerPerformance) reportTable {
	t := reportTable{Headers: []string{"Vendedor", "Ventas", "Completadas", "Canceladas", "Unidades", "Ingresos", "Ticket promedio"}}
	for _, s := range sellers {
		name := s.SellerName
		if name == "" {
			name = "#" + strconv.FormatInt(s.SellerID, 10)
		}
		t.Rows = append(t.Rows, []string{
			name,
			formatCount(s.TotalSales),
			formatCount(s.CompletedSales),
			formatCount(s.CancelledSales),
			formatCount(s.UnitsSold),
			formatMoney(s.Revenue),
			formatMoney(s.AverageTicket),
		})
	}
	return t
}

func inventoryTable(valuation domain.InventoryValuation) reportTable {
	t := reportTable{Headers: []string{"SKU", "Producto", "Talla", "Color", "Categoría", "Existencia", "Mínimo", "Precio", "Valor", "Nivel"}}
	for _, line := range valuation.Lines {
		t.Rows = append(t.Rows, []string{
			line.SKU,
			line.ProductName,
			line.Size,
			line.Color,
			line.CategoryName,
			formatCount(line.Stock),
			formatCount(line.MinStock),
			formatMoney(line.UnitPrice),
			formatMoney(line.Value),
			string(line.Level),
		})
	}
	t.Rows = append(t.Rows, []string{"", "Total", "", "", "", formatCount(valuation.Units), "", "", formatMoney(valuation.Value), ""})
	return t
}

func dashboardTable(d domain.Dashboard) reportTable {
	t := reportTable{Headers: []string{"Indicador", "Hoy", "Mes"}}
	t.Rows = [][]string{
		{"Ventas", formatCount(d.Today.Sales), formatCount(d.Month.Sales)},
		{"Canceladas", formatCount(d.Today.CancelledSales), formatCount(d.Month.CancelledSales)},
		{"Ingresos", formatMoney(d.Today.Revenue), formatMoney(d.Month.Revenue)},
		{"IVA", formatMoney(d.Today.Tax), formatMoney(d.Month.Tax)},
		{"Ticket promedio", formatMoney(d.Today.AverageTicket), formatMoney(d.Month.AverageTicket)},
		{"Unidades vendidas", formatCount(d.Today.UnitsSold), formatCount(d.Month.UnitsSold)},
		{"Valor de inventario", formatMoney(d.Inventory.Value), ""},
		{"Variantes con stock bajo", formatCount(d.Inventory.LowStockVariants), ""},
	}
	return t
}

func dailySummaryTable(s domain.DailySummary) reportTable {
	t := reportTable{Headers: []string{"Hora", "Ventas", "Ingresos"}}
	for _, h := range s.ByHour {
		t.Rows = append(t.Rows, []string{fmt.Sprintf("%02d:00", h.Hour), formatCount(h.Sales), formatMoney(h.Revenue)})
	}
	t.Rows = append(t.Rows, []string{"Total", formatCount(s.Summary.Sales), formatMoney(s.Summary.Revenue)})
	return t
}
