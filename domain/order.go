package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"

	// statusCompleted is a legacy spelling of Delivered found in older records.
	// It is accepted on read and never written.
	statusCompleted OrderStatus = "Completed"
)

// OrderStatuses lists every status an order may be moved to.
var OrderStatuses = []OrderStatus{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// RevenueStatuses are the stored status values whose totals count as revenue.
var RevenueStatuses = []OrderStatus{StatusDelivered, statusCompleted}

// ParseOrderStatus validates s against the known statuses.
func ParseOrderStatus(s string) (OrderStatus, error) {
	s = strings.TrimSpace(s)
	for _, st := range OrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	if s == string(statusCompleted) {
		return StatusDelivered, nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

// Normalize maps legacy spellings onto the canonical status set.
func (s OrderStatus) Normalize() OrderStatus {
	if s == statusCompleted {
		return StatusDelivered
	}
	return s
}

// CountsAsRevenue reports whether an order in this status contributes to revenue.
func (s OrderStatus) CountsAsRevenue() bool {
	return s.Normalize() == StatusDelivered
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order is a placed customer order.
type Order struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"orderNumber"`
	CustomerID    string      `json:"customerId"`
	CustomerName  string      `json:"customerName,omitempty"`
	Items         []OrderItem `json:"items"`
	AddressID     string      `json:"addressId"`
	TotalAmount   float64     `json:"totalAmount"`
	PaymentMethod string      `json:"paymentMethod"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// StatusChange records a single transition of an order's status.
type StatusChange struct {
	OrderID   string      `json:"orderId"`
	Previous  OrderStatus `json:"previousStatus"`
	New       OrderStatus `json:"newStatus"`
	ChangedBy string      `json:"changedBy,omitempty"`
	ChangedAt time.Time   `json:"changedAt"`
}
