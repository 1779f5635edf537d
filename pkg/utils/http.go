package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

func GetRequestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func GetIPAddress(c echo.Context) string {
	return c.RealIP()
}

// FormInt reads an integer form value, returning def when it is absent or malformed.
func FormInt(c echo.Context, name string, def int) int {
	raw := c.FormValue(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
