package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"rootcart/domain"
	"rootcart/storage"
)

type addAddressRequest struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Street    string `json:"street"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	ZipCode   string `json:"zipCode" validate:"required"`
	Country   string `json:"country" validate:"required"`
	Phone     string `json:"phone"`
	IsDefault bool   `json:"isDefault"`
}

func listProducts(store CatalogStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		products, err := store.ListProducts(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "products": products})
	}
}

func getProduct(store CatalogStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		product, err := store.GetProduct(c.Request().Context(), c.Param("id"))
		if errors.Is(err, storage.ErrNotFound) {
			return fail(c, http.StatusNotFound, "Product not found")
		}
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "product": product})
	}
}

func listCategories(store CatalogStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		categories, err := store.ListCategories(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "categories": categories})
	}
}

func addAddress(store CatalogStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _ := principalFrom(c)
		var req addAddressRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		addr, err := store.CreateAddress(c.Request().Context(), domain.Address{
			UserID:    p.UserID,
			Name:      req.Name,
			Email:     req.Email,
			Street:    req.Street,
			City:      req.City,
			State:     req.State,
			ZipCode:   req.ZipCode,
			Country:   req.Country,
			Phone:     req.Phone,
			IsDefault: req.IsDefault,
		})
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, map[string]any{"success": true, "message": "Address added successfully", "address": addr})
	}
}

func listAddresses(store CatalogStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _ := principalFrom(c)
		addresses, err := store.ListAddresses(c.Request().Context(), p.UserID)
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "addresses": addresses})
	}
}
