package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PaystackSignatureHeader carries the HMAC of a webhook body.
const PaystackSignatureHeader = "x-paystack-signature"

// SignatureVerifier checks a webhook body against its signature header.
type SignatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// PaystackSignature rejects webhook calls whose body does not match the signature header.
func PaystackSignature(verifier SignatureVerifier, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !verifier.VerifySignature(c.Body(), c.Get(PaystackSignatureHeader)) {
			log.Warn("rejected webhook with bad signature", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid signature",
			})
		}
		return c.Next()
	}
}
