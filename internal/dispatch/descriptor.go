package dispatch

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/marketplace/internal/apperr"
)

var (
	// ErrUpstreamParse is returned when the generated text is not a JSON object.
	ErrUpstreamParse = apperr.New(apperr.ErrUpstream, "AI assistant returned an unreadable request").WithStatus(http.StatusBadGateway)

	// ErrMalformedDescriptor is returned when the descriptor lacks a method or route.
	ErrMalformedDescriptor = apperr.New(apperr.ErrUpstream, "AI assistant request is missing a method or route").WithStatus(http.StatusBadGateway)
)

// Descriptor is an abstract API request produced by the AI assistant.
type Descriptor struct {
	Method string            `json:"method"`
	Route  string            `json:"route"`
	Params map[string]string `json:"params,omitempty"`
	Query  map[string]string `json:"query,omitempty"`
	Body   json.RawMessage   `json:"body,omitempty"`
}

type rawDescriptor struct {
	Method string                     `json:"method"`
	Route  string                     `json:"route"`
	Params map[string]json.RawMessage `json:"params"`
	Query  map[string]json.RawMessage `json:"query"`
	Body   json.RawMessage            `json:"body"`
}

// Parse reads a descriptor from generated text. A surrounding Markdown code
// fence is tolerated. Non-string params and query values are kept as their
// JSON text, so {"options":{"limit":5}} yields options=`{"limit":5}`.
func Parse(raw string) (Descriptor, error) {
	var rd rawDescriptor
	if err := json.Unmarshal([]byte(stripFence(raw)), &rd); err != nil {
		return Descriptor{}, ErrUpstreamParse
	}

	d := Descriptor{
		Method: strings.ToUpper(strings.TrimSpace(rd.Method)),
		Route:  strings.TrimSpace(rd.Route),
		Params: flatten(rd.Params),
		Query:  flatten(rd.Query),
		Body:   rd.Body,
	}
	if d.Method == "" || d.Route == "" {
		return Descriptor{}, ErrMalformedDescriptor
	}
	if len(d.Route) > 1 {
		d.Route = strings.TrimRight(d.Route, "/")
	}
	return d, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func flatten(in map[string]json.RawMessage) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if string(v) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}
