package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"rootcart/domain"
	"rootcart/realtime"
	"rootcart/stats"
)

// StatsProvider yields the current dashboard snapshot.
type StatsProvider interface {
	Snapshot(ctx context.Context) stats.Result
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, domain.OrderStatus, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
}

type CatalogStore interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateAddress(ctx context.Context, a domain.Address) (domain.Address, error)
	ListAddresses(ctx context.Context, userID string) ([]domain.Address, error)
}

// StatusHistory records order status transitions.
type StatusHistory interface {
	Append(ctx context.Context, ch domain.StatusChange) error
	List(ctx context.Context, orderID string) ([]domain.StatusChange, error)
}

// Notifier is told about committed order writes.
type Notifier interface {
	OrderPlaced(order domain.Order)
	OrderStatusChanged(order domain.Order, previous, next domain.OrderStatus)
}

// Realtime is the local membership table sessions attach to.
type Realtime interface {
	Register() *realtime.Conn
	Unregister(connID string)
	Join(connID, room string) error
	SendTo(connID string, msg realtime.Message) error
}

// OrderNumbers issues human facing order numbers.
type OrderNumbers interface {
	Next() string
}

// Deps carries everything the HTTP surface needs. History and Deduper are optional.
type Deps struct {
	Stats        StatsProvider
	Orders       OrderStore
	Catalog      CatalogStore
	History      StatusHistory
	Notifier     Notifier
	Hub          Realtime
	Auth         Authenticator
	Deduper      Deduper
	OrderNumbers OrderNumbers
	Logger       *log.Logger
	Heartbeat    time.Duration
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		panic("Logger is not initialized")
	}
	authed := requireAuth(d.Auth)

	e.GET("/healthz", healthz())
	e.GET("/api/dashboard/stats", getDashboardStats(d.Stats, d.Logger, "/api/dashboard/stats"), authed, requireAdmin)

	sessions := newSessions()
	e.GET("/api/realtime/stream", streamEvents(d.Hub, d.Auth, sessions, d.Logger, d.Heartbeat))
	e.POST("/api/realtime/:connectionId/events", postClientEvent(d.Hub, d.Stats, sessions))

	orders := e.Group("/api/order", authed)
	orders.POST("/place", placeOrder(d.Orders, d.Notifier, d.Deduper, d.OrderNumbers, d.Logger))
	orders.GET("/my-orders", listMyOrders(d.Orders))
	orders.GET("/all", listAllOrders(d.Orders), requireAdmin)
	orders.GET("/stats", getDashboardStats(d.Stats, d.Logger, "/api/order/stats"), requireAdmin)
	orders.PUT("/:orderId/status", updateOrderStatus(d.Orders, d.Notifier, d.History, d.Logger), requireAdmin)
	orders.GET("/:orderId/history", orderHistory(d.History), requireAdmin)

	e.GET("/api/product/all", listProducts(d.Catalog))
	e.GET("/api/product/:id", getProduct(d.Catalog))
	e.GET("/api/category/all", listCategories(d.Catalog))
	e.POST("/api/address/add", addAddress(d.Catalog), authed)
	e.GET("/api/address/get", listAddresses(d.Catalog), authed)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}
