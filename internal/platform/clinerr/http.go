package clinerr

import (
	"errors"

	"github.com/labstack/echo/v4"
)

// Respond writes err as a JSON error response. Coded errors keep their code
// and message; anything else becomes a 500 INTERNAL without leaking detail.
func Respond(c echo.Context, err error) error {
	var ce *Error
	if !errors.As(err, &ce) {
		ce = New(CodeInternal, "internal server error")
	}
	return c.JSON(HTTPStatus(ce.Code), map[string]string{
		"code":    ce.Code,
		"message": ce.Message,
	})
}
