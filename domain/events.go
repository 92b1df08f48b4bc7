package domain

import "time"

// EventKind classifies events produced by the notification layer.
type EventKind string

const (
	KindNewOrder           EventKind = "new-order"
	KindOrderStatusChanged EventKind = "order-status-changed"
	KindStatsSnapshot      EventKind = "stats-snapshot"
)

// Server to client event names.
const (
	EventConnected          = "connected"
	EventDashboardStats     = "dashboardStats"
	EventNewOrder           = "newOrder"
	EventOrderStatusUpdated = "orderStatusUpdated"
	EventOrderUpdate        = "orderUpdate"
)

// Client to server event names.
const (
	EventAdminJoin         = "adminJoin"
	EventUserJoin          = "userJoin"
	EventGetDashboardStats = "getDashboardStats"
)

// RoomAdmin is joined by every admin dashboard session.
const RoomAdmin = "admin"

// UserRoom returns the room joined by a signed-in shopper's sessions.
func UserRoom(userID string) string {
	return "user-" + userID
}

// WireName maps an event kind to the name clients listen for.
func (k EventKind) WireName() string {
	switch k {
	case KindNewOrder:
		return EventNewOrder
	case KindOrderStatusChanged:
		return EventOrderStatusUpdated
	case KindStatsSnapshot:
		return EventDashboardStats
	default:
		return string(k)
	}
}

type NewOrderEvent struct {
	OrderID     string      `json:"orderId"`
	OrderNumber string      `json:"orderNumber"`
	Customer    string      `json:"customer"`
	TotalAmount float64     `json:"totalAmount"`
	ItemsCount  int         `json:"itemsCount"`
	Status      OrderStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	Stats       Snapshot    `json:"stats"`
	Degraded    []string    `json:"degraded,omitempty"`
}

type OrderStatusChangedEvent struct {
	OrderID        string      `json:"orderId"`
	OrderNumber    string      `json:"orderNumber"`
	NewStatus      OrderStatus `json:"newStatus"`
	PreviousStatus OrderStatus `json:"previousStatus"`
	Customer       string      `json:"customer"`
	Timestamp      time.Time   `json:"timestamp"`
	Stats          Snapshot    `json:"stats"`
	Degraded       []string    `json:"degraded,omitempty"`
}

// OrderUpdateEvent is delivered to the owning customer's room.
type OrderUpdateEvent struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message"`
}

type ConnectedEvent struct {
	ConnectionID string `json:"connectionId"`
}

// ClientEvent is a message sent by a session to the server.
type ClientEvent struct {
	Event string `json:"event" validate:"required,oneof=adminJoin userJoin getDashboardStats"`
}

// OrderEventRecord is the envelope exported to downstream consumers.
type OrderEventRecord struct {
	Kind           EventKind   `json:"kind"`
	OrderID        string      `json:"orderId"`
	OrderNumber    string      `json:"orderNumber"`
	CustomerID     string      `json:"customerId"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previousStatus,omitempty"`
	TotalAmount    float64     `json:"totalAmount"`
	Timestamp      time.Time   `json:"timestamp"`
}
