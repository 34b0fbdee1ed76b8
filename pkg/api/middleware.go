package api

import (
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"
)

func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		return next(c)
	}
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)

		// Context.Response is a plain http.ResponseWriter; the status lives
		// on the echo wrapper.
		status := 0
		if resp, ok := c.Response().(*echo.Response); ok {
			status = resp.Status
		}

		req := c.Request()
		slog.Info("HTTP request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds())
		return err
	}
}
