package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
)

// ErrorHandler renders every error as {"success":false,"error":msg}.
// Unclassified failures are logged and reported without detail.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperr.Status(err)
		msg := apperr.Message(err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			msg = fe.Message
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		if msg == "" {
			msg = http.StatusText(status)
		}

		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   msg,
		})
	}
}
