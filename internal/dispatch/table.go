package dispatch

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/services"
)

// ErrUnknownRoute is returned when no endpoint is registered under a descriptor's key.
var ErrUnknownRoute = apperr.New(apperr.ErrNotFound, "no handler for the requested route").WithStatus(http.StatusNotFound)

// Route describes a registered endpoint.
type Route struct {
	Method      string
	Path        string
	Description string
	Endpoint    Endpoint
}

// Key is the exact lookup key of the route.
func (r Route) Key() string {
	return Key(r.Method, r.Path)
}

// Key joins method and route the way the table indexes them.
func Key(method, route string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(route)
}

// Table maps "METHOD /route" keys to endpoints.
type Table struct {
	routes map[string]Route
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{routes: make(map[string]Route)}
}

// Register adds an endpoint. Registering the same key twice replaces the endpoint.
func (t *Table) Register(method, path, description string, ep Endpoint) {
	r := Route{Method: strings.ToUpper(method), Path: path, Description: description, Endpoint: ep}
	t.routes[r.Key()] = r
}

// Lookup finds the endpoint registered under method and route.
func (t *Table) Lookup(method, route string) (Endpoint, bool) {
	r, ok := t.routes[Key(method, route)]
	if !ok {
		return nil, false
	}
	return r.Endpoint, true
}

// Routes lists the registered routes ordered by path, then method.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Dispatch invokes the endpoint named by d on behalf of identity.
func (t *Table) Dispatch(ctx context.Context, identity *services.Identity, d Descriptor) (Response, error) {
	ep, ok := t.Lookup(d.Method, d.Route)
	if !ok {
		return Response{}, ErrUnknownRoute
	}
	return ep(ctx, Request{
		Identity: identity,
		Params:   d.Params,
		Query:    d.Query,
		Body:     d.Body,
	})
}
