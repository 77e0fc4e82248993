package domain

import "github.com/shopspring/decimal"

// ReportQuery carries the raw query of a report request. Start and End are
// inclusive calendar dates (YYYY-MM-DD) in the store time zone.
type ReportQuery struct {
	Start         string
	End           string
	SellerID      int64
	PaymentMethod PaymentMethod
	CategoryID    int64
	Status        SaleStatus
	Limit         int
	GroupBy       Period
}

// Period is the bucket size of the sales-by-period report. Weeks start on
// Monday.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

type InventoryQuery struct {
	CategoryID   int64
	SupplierID   int64
	LowStockOnly bool
}

type SalesTotals struct {
	Sales          int64 `json:"sales"`
	CancelledSales int64 `json:"cancelledSales"`
	Revenue        Money `json:"revenue"`
	Tax            Money `json:"tax"`
	AverageTicket  Money `json:"averageTicket"`
	UnitsSold      int64 `json:"unitsSold"`
}

// DailySales is one bucket of the sales-by-period report. Date is the first
// day of the bucket.
type DailySales struct {
	Date          string `json:"date"`
	Period        Period `json:"period"`
	Sales         int64  `json:"sales"`
	Revenue       Money  `json:"totalRevenue"`
	AverageTicket Money  `json:"averageTicket"`
	UnitsSold     int64  `json:"unitsSold"`
}

type TopProduct struct {
	VariantID    int64  `json:"variantId"`
	ProductID    int64  `json:"productId"`
	ProductName  string `json:"productName"`
	SKU          string `json:"sku"`
	Size         string `json:"size,omitempty"`
	Color        string `json:"color,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`
	Quantity     int64  `json:"quantitySold"`
	Revenue      Money  `json:"totalRevenue"`
}

type CategorySales struct {
	CategoryID   int64           `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	Sales        int64           `json:"sales"`
	UnitsSold    int64           `json:"unitsSold"`
	Revenue      Money           `json:"totalRevenue"`
	Percentage   decimal.Decimal `json:"percentage"`
}

type PaymentMethodSales struct {
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Sales         int64           `json:"sales"`
	Revenue       Money           `json:"totalRevenue"`
	Percentage    decimal.Decimal `json:"percentage"`
}

type SellerPerformance struct {
	SellerID       int64  `json:"sellerId"`
	SellerName     string `json:"sellerName"`
	TotalSales     int64  `json:"totalSales"`
	CompletedSales int64  `json:"completedSales"`
	CancelledSales int64  `json:"cancelledSales"`
	Revenue        Money  `json:"totalRevenue"`
	AverageTicket  Money  `json:"averageTicket"`
	UnitsSold      int64  `json:"unitsSold"`
}

type StockLevel string

const (
	StockOut    StockLevel = "Out"
	StockLow    StockLevel = "Low"
	StockMedium StockLevel = "Medium"
	StockNormal StockLevel = "Normal"
)

type InventoryLine struct {
	VariantID    int64      `json:"variantId"`
	ProductID    int64      `json:"productId"`
	ProductCode  string     `json:"productCode"`
	ProductName  string     `json:"productName"`
	SKU          string     `json:"sku"`
	Size         string     `json:"size,omitempty"`
	Color        string     `json:"color,omitempty"`
	CategoryID   int64      `json:"categoryId"`
	CategoryName string     `json:"categoryName"`
	SupplierName string     `json:"supplierName,omitempty"`
	Stock        int        `json:"stock"`
	MinStock     int        `json:"minStock"`
	UnitPrice    Money      `json:"unitPrice"`
	Value        Money      `json:"value"`
	Level        StockLevel `json:"level"`
}

type CategoryValuation struct {
	CategoryID   int64  `json:"categoryId"`
	CategoryName string `json:"categoryName"`
	Products     int    `json:"products"`
	Variants     int    `json:"variants"`
	Units        int64  `json:"units"`
	Value        Money  `json:"value"`
}

type InventoryValuation struct {
	Lines      []InventoryLine     `json:"lines"`
	Categories []CategoryValuation `json:"categories"`
	Products   int                 `json:"products"`
	Variants   int                 `json:"variants"`
	Units      int64               `json:"units"`
	Value      Money               `json:"value"`
}

type HourlySales struct {
	Hour    int   `json:"hour"`
	Sales   int64 `json:"sales"`
	Revenue Money `json:"totalRevenue"`
}

type DailySummary struct {
	Date       string              `json:"date"`
	Summary    SalesTotals         `json:"summary"`
	ByHour     []HourlySales       `json:"byHour"`
	TopSellers []SellerPerformance `json:"topSellers"`
}

type InventorySnapshot struct {
	Products         int   `json:"products"`
	Variants         int   `json:"variants"`
	Units            int64 `json:"units"`
	Value            Money `json:"value"`
	LowStockVariants int   `json:"lowStockVariants"`
}

type Dashboard struct {
	Date        string            `json:"date"`
	Today       SalesTotals       `json:"today"`
	Month       SalesTotals       `json:"month"`
	Inventory   InventorySnapshot `json:"inventory"`
	TopProducts []TopProduct      `json:"topProducts"`
}
