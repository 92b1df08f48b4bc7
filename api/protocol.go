package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 * 1024 // 64 KiB

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, errorResponse{Success: false, Message: message})
}

// decodeBody reads a size limited JSON body into dst, rejecting unknown
// fields, then validates it.
func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s", verrs[0].Field())
		}
		return err
	}
	return nil
}

func badRequest(c echo.Context, err error) error {
	return fail(c, http.StatusBadRequest, err.Error())
}
