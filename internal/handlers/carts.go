package handlers

import (
	"context"
	"net/http"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/dispatch"
	"github.com/example/marketplace/internal/services"
)

// CartHandler serves the caller's carts.
type CartHandler struct {
	carts *services.CartService
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

// List returns the caller's carts.
func (h *CartHandler) List(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}

	carts, err := h.carts.List(ctx, caller)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: carts}, nil
}

// Get returns one of the caller's carts.
func (h *CartHandler) Get(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	cart, err := h.carts.Get(ctx, caller, id)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: cart}, nil
}

type createCartRequest struct {
	CartInfo *services.CartInput `json:"cartInfo" validate:"required"`
}

// Create opens a cart for the caller.
func (h *CartHandler) Create(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}

	var body createCartRequest
	if err := decode(req, &body); err != nil {
		return dispatch.Response{}, err
	}
	if body.CartInfo == nil {
		return dispatch.Response{}, apperr.New(apperr.ErrValidation, "please provide the cartInfo")
	}

	cart, err := h.carts.Create(ctx, caller, *body.CartInfo)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Status: http.StatusCreated, Body: cart}, nil
}

// Update replaces the fields of one of the caller's carts.
func (h *CartHandler) Update(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	var in services.CartUpdate
	if err := decode(req, &in); err != nil {
		return dispatch.Response{}, err
	}

	cart, err := h.carts.Update(ctx, caller, id, in)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: cart}, nil
}
