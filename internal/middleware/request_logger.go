package middleware

import (
	"strings"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/labstack/echo/v4"
)

// RequestLoggerMiddleware logs one line per request. Progress and frame
// polling is logged at debug level since the viewer hits those endpoints
// several times a second.
func (mw *MiddlewareManager) RequestLoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		req := c.Request()
		status := c.Response().Status
		elapsed := time.Since(start).Round(time.Microsecond)
		if err != nil {
			mw.logger.Errorf("RequestID: %s, Method: %s, URI: %s, Status: %d, Time: %s, Error: %v",
				utils.GetRequestID(c), req.Method, req.RequestURI, status, elapsed, err)
			return err
		}
		if isPolling(c.Path()) && status < 400 {
			mw.logger.Debugf("RequestID: %s, Method: %s, URI: %s, Status: %d, Time: %s",
				utils.GetRequestID(c), req.Method, req.RequestURI, status, elapsed)
			return nil
		}
		mw.logger.Infof("RequestID: %s, Method: %s, URI: %s, Status: %d, Size: %d, IP: %s, Time: %s",
			utils.GetRequestID(c), req.Method, req.RequestURI, status, c.Response().Size, utils.GetIPAddress(c), elapsed)
		return nil
	}
}

func isPolling(route string) bool {
	return strings.HasSuffix(route, "/progress") || strings.HasSuffix(route, "/frame/:file")
}
