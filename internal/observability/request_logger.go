package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestLogger logs one line per HTTP request and records it in metrics.
// The route pattern is used as the metrics key so ids do not explode cardinality.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)
		status := c.Response().StatusCode()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		metrics.RecordRequest(route, c.Method(), status, latency)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		if actorID, ok := c.Locals("actor_id").(string); ok && actorID != "" {
			fields = append(fields, zap.String("actor_id", actorID))
		}
		if status >= fiber.StatusInternalServerError {
			logger.Warn("http request", fields...)
		} else {
			logger.Info("http request", fields...)
		}
		return err
	}
}
