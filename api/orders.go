package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"rootcart/domain"
	"rootcart/storage"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	defaultPaymentMethod = "cod"
)

type orderItemRequest struct {
	ProductID  string  `json:"productId" validate:"required_without=ID"`
	ID         string  `json:"_id"`
	Quantity   int     `json:"quantity" validate:"min=1"`
	Price      float64 `json:"price" validate:"gte=0"`
	OfferPrice float64 `json:"offerPrice" validate:"gte=0"`
}

type placeOrderRequest struct {
	Items         []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	Address       string             `json:"address" validate:"required"`
	TotalAmount   float64            `json:"totalAmount" validate:"gte=0"`
	PaymentMethod string             `json:"paymentMethod"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type orderResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Order   domain.Order `json:"order"`
}

type ordersResponse struct {
	Success bool           `json:"success"`
	Orders  []domain.Order `json:"orders"`
}

type historyResponse struct {
	Success bool                  `json:"success"`
	History []domain.StatusChange `json:"history"`
}

func (r placeOrderRequest) toOrder(p Principal, number string, now time.Time) domain.Order {
	items := make([]domain.OrderItem, len(r.Items))
	for i, it := range r.Items {
		id := it.ProductID
		if id == "" {
			id = it.ID
		}
		price := it.Price
		if it.OfferPrice > 0 {
			price = it.OfferPrice
		}
		items[i] = domain.OrderItem{ProductID: id, Quantity: it.Quantity, Price: price}
	}
	payment := strings.TrimSpace(r.PaymentMethod)
	if payment == "" {
		payment = defaultPaymentMethod
	}
	return domain.Order{
		OrderNumber:   number,
		CustomerID:    p.UserID,
		CustomerName:  p.DisplayName(),
		Items:         items,
		AddressID:     r.Address,
		TotalAmount:   r.TotalAmount,
		PaymentMethod: payment,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// placeOrder stores the order and then hands it to the notifier. The
// response does not wait for, or depend on, the notification.
func placeOrder(store OrderStore, notifier Notifier, deduper Deduper, numbers OrderNumbers, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p, _ := principalFrom(c)

		var req placeOrderRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, err)
		}

		idemKey := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		if idemKey != "" && deduper != nil {
			added, err := deduper.Add(ctx, p.UserID, idemKey)
			if err != nil {
				logger.WithError(err).Warn("idempotency check failed, placing order anyway")
			} else if !added {
				return fail(c, http.StatusConflict, "duplicate order")
			}
		}

		order, err := store.CreateOrder(ctx, req.toOrder(p, numbers.Next(), time.Now().UTC()))
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(context.Background(), p.UserID, idemKey); rerr != nil {
					logger.WithError(rerr).WithField("user", p.UserID).Error("dedupe rollback failed")
				}
			}
			logger.WithError(err).WithField("user", p.UserID).Error("place order failed")
			return fail(c, http.StatusInternalServerError, "failed to place order")
		}

		notifier.OrderPlaced(order)
		return c.JSON(http.StatusCreated, orderResponse{Success: true, Message: "Order placed successfully", Order: order})
	}
}

func updateOrderStatus(store OrderStore, notifier Notifier, history StatusHistory, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p, _ := principalFrom(c)

		var req updateStatusRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		status, err := domain.ParseOrderStatus(req.Status)
		if err != nil {
			return fail(c, http.StatusBadRequest, "Invalid status")
		}

		order, previous, err := store.UpdateOrderStatus(ctx, c.Param("orderId"), status)
		if errors.Is(err, storage.ErrNotFound) {
			return fail(c, http.StatusNotFound, "Order not found")
		}
		if err != nil {
			logger.WithError(err).WithField("order", c.Param("orderId")).Error("update order status failed")
			return fail(c, http.StatusInternalServerError, "failed to update order")
		}

		notifier.OrderStatusChanged(order, previous, status)
		if history != nil {
			change := domain.StatusChange{OrderID: order.ID, Previous: previous, New: status, ChangedBy: p.UserID, ChangedAt: order.UpdatedAt}
			if err := history.Append(ctx, change); err != nil {
				logger.WithError(err).WithField("order", order.ID).Warn("failed to record status history")
			}
		}
		return c.JSON(http.StatusOK, orderResponse{Success: true, Message: "Order status updated", Order: order})
	}
}

func listMyOrders(store OrderStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _ := principalFrom(c)
		orders, err := store.ListOrders(c.Request().Context(), p.UserID)
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, ordersResponse{Success: true, Orders: orders})
	}
}

func listAllOrders(store OrderStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		orders, err := store.ListOrders(c.Request().Context(), "")
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, ordersResponse{Success: true, Orders: orders})
	}
}

func orderHistory(history StatusHistory) echo.HandlerFunc {
	return func(c echo.Context) error {
		if history == nil {
			return fail(c, http.StatusNotImplemented, "order history is not configured")
		}
		changes, err := history.List(c.Request().Context(), c.Param("orderId"))
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, historyResponse{Success: true, History: changes})
	}
}
