package handlers

import (
	"context"
	"net/http"

	"github.com/example/marketplace/internal/dispatch"
	"github.com/example/marketplace/internal/query"
	"github.com/example/marketplace/internal/services"
)

// ProductHandler serves the catalog.
type ProductHandler struct {
	products *services.ProductService
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(products *services.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List returns one page of products. Filters arrive as JSON in the options query parameter.
func (h *ProductHandler) List(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	var opts query.ProductOptions
	if err := query.ParseOptions(req.QueryValue("options"), &opts); err != nil {
		return dispatch.Response{}, err
	}

	page, err := h.products.List(ctx, opts)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: map[string]any{
		"products":   page.Items,
		"nextCursor": page.NextCursor,
	}}, nil
}

// Get returns a single product.
func (h *ProductHandler) Get(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	product, err := h.products.Get(ctx, id)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: map[string]any{"product": product}}, nil
}

// Create adds a product owned by the calling vendor.
func (h *ProductHandler) Create(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}

	var in services.ProductInput
	if err := decode(req, &in); err != nil {
		return dispatch.Response{}, err
	}

	product, err := h.products.Create(ctx, caller, in)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Status: http.StatusCreated, Body: product}, nil
}

// Update changes a product owned by the calling vendor.
func (h *ProductHandler) Update(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	var in services.ProductUpdate
	if err := decode(req, &in); err != nil {
		return dispatch.Response{}, err
	}

	product, err := h.products.Update(ctx, caller, id, in)
	if err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Body: product}, nil
}

// Delete removes a product owned by the calling vendor.
func (h *ProductHandler) Delete(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	caller, err := req.Caller()
	if err != nil {
		return dispatch.Response{}, err
	}
	id, err := req.ID("id")
	if err != nil {
		return dispatch.Response{}, err
	}

	if err := h.products.Delete(ctx, caller, id); err != nil {
		return dispatch.Response{}, err
	}
	return dispatch.Response{Status: http.StatusNoContent}, nil
}
