package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/marketplace/internal/services"
)

// Generator turns a user message into descriptor text.
type Generator interface {
	GenerateRequest(ctx context.Context, systemPrompt, message string) (string, error)
}

// Bridge routes natural-language requests through the endpoint table.
type Bridge struct {
	table  *Table
	gen    Generator
	prompt string
	log    *zap.Logger
}

// NewBridge constructs a Bridge. The system prompt is built once from table,
// so routes must be registered before the bridge is created.
func NewBridge(table *Table, gen Generator, log *zap.Logger) *Bridge {
	return &Bridge{table: table, gen: gen, prompt: SystemPrompt(table), log: log}
}

// Converse asks the generator for a descriptor and dispatches it.
func (b *Bridge) Converse(ctx context.Context, identity *services.Identity, message string) (Response, error) {
	text, err := b.gen.GenerateRequest(ctx, b.prompt, message)
	if err != nil {
		return Response{}, err
	}

	d, err := Parse(text)
	if err != nil {
		b.log.Warn("unusable AI descriptor", zap.String("generated", text), zap.Error(err))
		return Response{}, err
	}

	b.log.Info("dispatching AI request", zap.String("method", d.Method), zap.String("route", d.Route))
	return b.table.Dispatch(ctx, identity, d)
}

// SystemPrompt lists the table's routes and the descriptor format.
func SystemPrompt(t *Table) string {
	var sb strings.Builder
	sb.WriteString("You generate API request objects for a marketplace from the user's message.\n")
	sb.WriteString("Available routes:\n")
	for i, r := range t.Routes() {
		fmt.Fprintf(&sb, "%d. %s %s", i+1, r.Method, r.Path)
		if r.Description != "" {
			sb.WriteString(": " + r.Description)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(`
Respond with a single JSON object with these fields:
- method: the HTTP method of a route above
- route: the route exactly as listed, with placeholders such as :id left in place
- params: values for the route placeholders, if any
- query: query parameters, if any; list filters go in "options" as a JSON object
- body: the request body, if any

Respond ONLY with the JSON object.
`)
	return sb.String()
}
