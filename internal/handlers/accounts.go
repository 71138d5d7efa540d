package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/example/marketplace/internal/dispatch"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/services"
)

// AccountHandler serves account registration and profile endpoints.
type AccountHandler struct {
	accounts *services.AccountService
	cookie   SessionCookie
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accounts *services.AccountService, cookie SessionCookie) *AccountHandler {
	return &AccountHandler{accounts: accounts, cookie: cookie}
}

// Create registers an account and signs it in.
func (h *AccountHandler) Create(c *fiber.Ctx) error {
	var req services.CreateAccountInput
	if err := bodyOf(c, &req); err != nil {
		return err
	}

	created, err := h.accounts.Create(c.UserContext(), req)
	if err != nil {
		return err
	}

	token, err := h.accounts.IssueToken(c.UserContext(), created.Account)
	if err != nil {
		return err
	}
	h.cookie.set(c, token)

	return c.Status(fiber.StatusCreated).JSON(struct {
		BaseProfile   *models.Account    `json:"baseProfile"`
		ProfileByRole models.UserProfile `json:"profileByRole"`
		Token         string             `json:"token"`
	}{created.Account, created.Profile, token})
}

// Get returns an account with its role profile.
func (h *AccountHandler) Get(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	if _, err := req.Caller(); err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	account, err := h.accounts.Get(ctx, id)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: account}, nil
}

type updateAccountRequest struct {
	UpdatedFields services.UpdateAccountInput `json:"updatedFields"`
}

// Update changes the caller's own account.
func (h *AccountHandler) Update(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	var body updateAccountRequest
	if err := decode(req, &body); err != nil {
		return dispatch.Response{}, err
	}

	account, err := h.accounts.Update(ctx, caller, id, body.UpdatedFields)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: account}, nil
}
