package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/marketplace/internal/services"
)

// SessionCookie describes the auth cookie.
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (s SessionCookie) set(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     s.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.MaxAge.Seconds()),
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s SessionCookie) clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// OTPFlow issues and verifies email one-time passwords.
type OTPFlow interface {
	Issue(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) (*services.VerifyResult, error)
}

// AuthHandler serves the passwordless sign-in flow.
type AuthHandler struct {
	otp    OTPFlow
	cookie SessionCookie
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(otp OTPFlow, cookie SessionCookie) *AuthHandler {
	return &AuthHandler{otp: otp, cookie: cookie}
}

type sendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SendOTP emails a fresh verification code.
func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := bodyOf(c, &req); err != nil {
		return err
	}

	if err := h.otp.Issue(c.UserContext(), req.Email); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "OTP sent successfully",
	})
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"OTPFromUser" validate:"required,numeric,len=6"`
}

// VerifyOTP checks a code. Known accounts receive a session cookie.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := bodyOf(c, &req); err != nil {
		return err
	}

	res, err := h.otp.Verify(c.UserContext(), req.Email, req.Code)
	if err != nil {
		return err
	}

	body := fiber.Map{
		"success":      true,
		"message":      "OTP verification successful",
		"account":      res.Account,
		"isNewAccount": res.IsNewAccount,
	}
	if res.Token != "" {
		h.cookie.set(c, res.Token)
		body["token"] = res.Token
	}
	return c.JSON(body)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.cookie.clear(c)
	return c.SendStatus(fiber.StatusNoContent)
}
