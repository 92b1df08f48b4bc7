package domain

import "github.com/shopspring/decimal"

// Snapshot is a point-in-time summary of store activity shown on the admin dashboard.
type Snapshot struct {
	TotalProducts     int64   `json:"totalProducts"`
	TotalCustomers    int64   `json:"totalCustomers"`
	TotalOrders       int64   `json:"totalOrders"`
	TotalRevenue      float64 `json:"totalRevenue"`
	TodayOrders       int64   `json:"todayOrders"`
	TodayRevenue      float64 `json:"todayRevenue"`
	PendingOrders     int64   `json:"pendingOrders"`
	ProcessingOrders  int64   `json:"processingOrders"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

// StatsEnvelope is the single wire shape used for snapshots on both the
// push channel and the HTTP endpoint.
type StatsEnvelope struct {
	Success  bool     `json:"success"`
	Data     Snapshot `json:"data"`
	Degraded []string `json:"degraded,omitempty"`
}

// FormatAmount renders a money value with two decimals for display. Snapshot
// values themselves are never rounded.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
