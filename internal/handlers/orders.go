package handlers

import (
	"context"
	"net/http"

	"github.com/example/marketplace/internal/dispatch"
	"github.com/example/marketplace/internal/query"
	"github.com/example/marketplace/internal/services"
)

// OrderHandler serves order history and placement.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// List returns one page of the caller's orders.
func (h *OrderHandler) List(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}

	var opts query.OrderOptions
	if err := query.ParseOptions(req.QueryValue("options"), &opts); err != nil {
		return dispatch.Response{}, err
	}

	page, err := h.orders.List(ctx, caller, opts)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: map[string]any{
		"orders":     page.Items,
		"nextCursor": page.NextCursor,
	}}, nil
}

// Get returns one order visible to the caller.
func (h *OrderHandler) Get(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	order, err := h.orders.Get(ctx, caller, id)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: order}, nil
}

// Create places an order from a cart or a single product.
func (h *OrderHandler) Create(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}

	var in services.CreateOrderInput
	if err := decode(req, &in); err != nil {
		return dispatch.Response{}, err
	}

	order, err := h.orders.Create(ctx, caller, in)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Status: http.StatusCreated, Body: order}, nil
}

// Update changes an order's status or notes.
func (h *OrderHandler) Update(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	var in services.OrderUpdate
	if err := decode(req, &in); err != nil {
		return dispatch.Response{}, err
	}

	order, err := h.orders.Update(ctx, caller, id, in)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: order}, nil
}
