// Package apierror converts core errors into echo HTTP errors with a stable
// JSON body.
package apierror

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/domain/safety"
)

// Body is the JSON error payload.
type Body struct {
	Code    string   `json:"code"`
	Guard   string   `json:"guard,omitempty"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// From maps err to an *echo.HTTPError. Existing HTTP errors pass through.
// Unclassified errors become a 500 without leaking their text.
func From(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fe.Field())
		}
		return echo.NewHTTPError(http.StatusBadRequest, Body{
			Code:    string(safety.CodeValidation),
			Message: err.Error(),
			Fields:  fields,
		})
	}
	var se *safety.Error
	if !errors.As(err, &se) {
		return echo.NewHTTPError(http.StatusInternalServerError, Body{
			Code:    "internal",
			Message: "internal server error",
		}).SetInternal(err)
	}
	body := Body{Code: string(se.Code), Guard: se.Guard, Message: se.Error(), Fields: se.Fields}
	if se.Code == safety.CodeRepository {
		body.Message = "storage temporarily unavailable"
	}
	return echo.NewHTTPError(safety.HTTPStatus(err), body).SetInternal(err)
}

// BadRequest reports a malformed request.
func BadRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, Body{Code: "bad_request", Message: msg})
}
