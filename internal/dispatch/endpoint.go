// Package dispatch runs transport-neutral endpoints, both behind the REST
// router and behind the AI assistant's request descriptors.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/services"
)

// Request is the input of an Endpoint.
type Request struct {
	// Identity is nil for anonymous callers.
	Identity *services.Identity
	Params   map[string]string
	Query    map[string]string
	Body     json.RawMessage
}

// Response is the output of an Endpoint. Body is rendered as JSON.
type Response struct {
	Status int
	Body   any
}

// Endpoint handles one operation of the API.
type Endpoint func(ctx context.Context, req Request) (Response, error)

// Param returns the named path parameter.
func (r Request) Param(name string) string {
	return r.Params[name]
}

// QueryValue returns the named query parameter.
func (r Request) QueryValue(name string) string {
	return r.Query[name]
}

// ID parses the named path parameter as a uuid.
func (r Request) ID(name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Params[name])
	if err != nil {
		return uuid.Nil, apperr.New(apperr.ErrValidation, "invalid "+name)
	}
	return id, nil
}

// Caller returns the authenticated identity or an Unauthorized error.
func (r Request) Caller() (services.Identity, error) {
	if r.Identity == nil {
		return services.Identity{}, apperr.New(apperr.ErrUnauthorized, "not authorized")
	}
	return *r.Identity, nil
}

// Decode unmarshals the body into dst. An empty body leaves dst untouched.
func (r Request) Decode(dst any) error {
	if len(r.Body) == 0 || string(r.Body) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "malformed request body")
	}
	return nil
}
