package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/middleware"
	"github.com/example/marketplace/internal/services"
)

// PaystackHandler serves payment links and gateway webhooks.
type PaystackHandler struct {
	payments *services.PaymentService
	log      *zap.Logger
}

// NewPaystackHandler constructs PaystackHandler.
func NewPaystackHandler(payments *services.PaymentService, log *zap.Logger) *PaystackHandler {
	return &PaystackHandler{payments: payments, log: log}
}

// PaymentLink opens a checkout and returns the gateway reply as is.
func (h *PaystackHandler) PaymentLink(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "not authorized")
	}

	var req services.PaymentLinkInput
	if err := bodyOf(c, &req); err != nil {
		return err
	}

	raw, err := h.payments.CreatePaymentLink(c.UserContext(), identity, req)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// Webhook applies a signed gateway notification. Bad payloads are
// acknowledged so the gateway stops retrying them.
func (h *PaystackHandler) Webhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	if err := h.payments.HandleWebhook(c.UserContext(), body); err != nil {
		if apperr.Status(err) == fiber.StatusBadRequest {
			h.log.Warn("discarding malformed webhook", zap.Error(err))
			return c.SendStatus(fiber.StatusOK)
		}
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}
